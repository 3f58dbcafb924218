package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"envelope/internal/backend"
	"envelope/internal/config"
	"envelope/internal/core"
	"envelope/internal/ledger"
	"envelope/internal/log"
	"envelope/internal/services"
	"envelope/internal/storage"
)

// ctl is the state shared by the envelopectl subcommands.
type ctl struct {
	dbPath   string
	budget   string
	logLevel string

	cfg    *config.Config
	logger *log.Logger
	repo   *storage.SQLiteRepository
	now    func() time.Time
}

// NewCtlCommand builds the envelopectl command tree.
func NewCtlCommand() *cobra.Command {
	c := &ctl{now: time.Now}

	root := &cobra.Command{
		Use:           "envelopectl",
		Short:         "Administer envelope budgets stored in SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.repo != nil {
				return c.repo.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	root.PersistentFlags().StringVarP(&c.budget, "budget", "b", "", "budget name (default $BUDGET_NAME)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		c.budgetsCmd(),
		c.initCmd(),
		c.reportCmd(),
		c.verifyCmd(),
		c.advanceCmd(),
		c.exportCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *ctl) setup(cmd *cobra.Command) error {
	LoadEnvFile()
	c.cfg = config.Load()
	if c.dbPath == "" {
		c.dbPath = c.cfg.SQLiteDBPath
	}
	if c.budget == "" {
		c.budget = c.cfg.BudgetName
	}
	lvl, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	c.logger = log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}),
	}).WithComponent(log.ComponentCLI)
	return nil
}

func (c *ctl) open() (*storage.SQLiteRepository, error) {
	if c.repo != nil {
		return c.repo, nil
	}
	repo, err := storage.NewSQLiteRepository(c.dbPath)
	if err != nil {
		return nil, err
	}
	c.repo = repo
	return repo, nil
}

func (c *ctl) load(ctx context.Context) (*ledger.Budget, error) {
	repo, err := c.open()
	if err != nil {
		return nil, err
	}
	return repo.LoadBudget(ctx, c.budget)
}

// month resolves a --month value, defaulting to the budget's latest month.
func month(b *ledger.Budget, raw string) (core.MonthKey, error) {
	if raw != "" {
		return core.ParseMonthKey(raw)
	}
	latest, ok := b.LatestMonth()
	if !ok {
		return 0, fmt.Errorf("budget %q has no months: %w", b.Name(), core.ErrNotFound)
	}
	return latest, nil
}

func (c *ctl) budgetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budgets",
		Short: "List saved budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := c.open()
			if err != nil {
				return err
			}
			names, err := repo.ListBudgets(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (c *ctl) initCmd() *cobra.Command {
	var currency, first string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a budget with its first month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := BudgetSettings(c.cfg)
			if err != nil {
				return err
			}
			if currency != "" {
				if settings, err = core.SettingsFor(core.CurrencyISOCode(currency)); err != nil {
					return err
				}
			}
			key := CurrentMonth(c.now())
			if first != "" {
				if key, err = core.ParseMonthKey(first); err != nil {
					return err
				}
			}
			repo, err := c.open()
			if err != nil {
				return err
			}
			_, created, err := OpenBudget(cmd.Context(), repo, c.budget, settings, key)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("budget %q already exists", c.budget)
			}
			c.logger.Info("Budget created", log.FieldBudget, c.budget, log.FieldMonth, key.String())
			fmt.Fprintf(cmd.OutOrStdout(), "created %s starting %s\n", c.budget, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "", "currency preset (USD, EUR, BRL)")
	cmd.Flags().StringVar(&first, "month", "", "first month, YYYY-MM (default current month)")
	return cmd
}

func (c *ctl) reportCmd() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a month summary with category balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			key, err := month(b, raw)
			if err != nil {
				return err
			}
			r, err := b.MonthReport(key)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), b.Name(), b.Settings(), r)
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "month", "", "month, YYYY-MM (default latest)")
	return cmd
}

func writeReport(out io.Writer, name string, st core.BudgetSettings, r ledger.MonthReport) {
	f := st.CurrencyFormat.Format
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", name, r.Month.Month)
	fmt.Fprintf(tw, "Income\t%s\n", f(r.Income))
	fmt.Fprintf(tw, "Budgeted\t%s\n", f(r.Budgeted))
	fmt.Fprintf(tw, "Activity\t%s\n", f(r.Activity))
	fmt.Fprintf(tw, "To be budgeted\t%s\n", f(r.ToBeBudgeted))
	if r.AgeOfMoney != nil {
		fmt.Fprintf(tw, "Age of money\t%d days\n", *r.AgeOfMoney)
	}
	if r.Underfunded != 0 {
		fmt.Fprintf(tw, "Underfunded\t%s\n", f(r.Underfunded))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "GROUP\tCATEGORY\tBUDGETED\tACTIVITY\tBALANCE\tGOAL")
	for _, c := range r.Categories {
		goal := "-"
		if c.Goal != nil {
			goal = fmt.Sprintf("%s %.0f%%", c.Goal.Status, c.Goal.Fraction*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.GroupName, c.Name, f(c.Budgeted), f(c.Activity), f(c.Balance), goal)
	}
	tw.Flush()
}

func (c *ctl) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute derived balances and compare them with the saved ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Restoring already checks the saved derived data against a replay.
			b, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.Verify(); err != nil {
				c.logger.Error("Budget verification failed", log.FieldBudget, c.budget, log.FieldError, err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: consistent\n", b.Name())
			return nil
		},
	}
}

func (c *ctl) advanceCmd() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Open the next budget month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			var key core.MonthKey
			if raw != "" {
				if key, err = core.ParseMonthKey(raw); err != nil {
					return err
				}
			} else {
				latest, err := month(b, "")
				if err != nil {
					return err
				}
				key = latest.Next()
			}
			if err := b.AdvanceMonth(key); err != nil {
				return err
			}
			if err := c.repo.SaveSnapshot(cmd.Context(), b.Snapshot()); err != nil {
				return err
			}
			c.logger.Info("Month advanced", log.FieldBudget, b.Name(), log.FieldMonth, key.String())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: opened %s\n", b.Name(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "month", "", "month to open, YYYY-MM (default the one after the latest)")
	return cmd
}

func (c *ctl) exportCmd() *cobra.Command {
	var raw string
	var verify bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a month summary and register to the export backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := c.load(ctx)
			if err != nil {
				return err
			}
			key, err := month(b, raw)
			if err != nil {
				return err
			}
			bc, err := backend.FromAppConfig(c.cfg)
			if err != nil {
				return err
			}
			exporter, err := backend.New(ctx, bc, c.logger)
			if err != nil {
				return err
			}
			e, err := services.BuildMonthExport(b, key)
			if err != nil {
				return err
			}
			ref, err := exporter.ExportMonth(ctx, e)
			if err != nil {
				return fmt.Errorf("export %s: %w", key, err)
			}
			c.logger.Info("Month exported", log.FieldBudget, b.Name(), log.FieldMonth, key.String(), log.FieldExportRef, ref)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s exported to %s\n", b.Name(), key, ref)

			if !verify {
				return nil
			}
			if err := services.VerifyExport(ctx, exporter, b, key); err != nil {
				return fmt.Errorf("%s %s: %w", b.Name(), key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s export verified\n", b.Name(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "month", "", "month, YYYY-MM (default latest)")
	cmd.Flags().BoolVar(&verify, "verify", false, "read the export back and compare it with the ledger")
	return cmd
}

func (c *ctl) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the repository applies pending migrations.
			if _, err := c.open(); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(c.dbPath)
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
			return nil
		},
	}
}
