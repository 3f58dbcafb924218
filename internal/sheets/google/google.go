package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"envelope/internal/core"
	ports "envelope/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client exports budget months to one spreadsheet, one tab per month.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the tab name without year and month, e.g. "Budget".
	sheetBase string

	mu        sync.Mutex
	knownTabs map[string]bool
}

// Ensure interface conformance
var (
	_ ports.MonthExporter  = (*Client)(nil)
	_ ports.OverviewReader = (*Client)(nil)
)

// Options configure New. Credentials are a service account key, inline or
// from a file.
type Options struct {
	SpreadsheetID   string
	SheetBase       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetBase)
	if base == "" {
		base = "Budget"
	}

	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		knownTabs:     make(map[string]bool),
	}, nil
}

func newSheetsService(ctx context.Context, inline, file string) (*gsheet.Service, error) {
	inline, file = strings.TrimSpace(inline), strings.TrimSpace(file)

	var credentialsJSON []byte
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials", "component", "sheets")
		credentialsJSON = []byte(inline)
	case file != "":
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "component", "sheets", "path", file, "size", len(credentialsJSON))
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportMonth clears the month's tab, creating it if needed, and writes the
// summary, category table and register.
func (c *Client) ExportMonth(ctx context.Context, e ports.MonthExport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab := c.tabName(e.Overview.Month)
	if err := c.ensureTab(ctx, tab); err != nil {
		return "", err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tab+"!A:H", &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		c.forgetTabs()
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	values := monthValues(e)
	rng := fmt.Sprintf("%s!A1:H%d", tab, len(values))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Exported budget month",
		"component", "sheets",
		"budget", e.Overview.Budget,
		"month", e.Overview.Month.String(),
		"rows", len(values),
		"export_ref", rng)
	return rng, nil
}

// ReadMonthOverview reads back the summary of an exported month. Budget must
// match the exported one.
func (c *Client) ReadMonthOverview(ctx context.Context, budget string, month core.MonthKey) (core.MonthOverview, error) {
	if c.svc == nil {
		return core.MonthOverview{}, errors.New("sheets service not initialized")
	}
	rng := c.tabName(month) + "!A:F"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read %s: %w", rng, err)
	}
	o, err := parseOverview(resp.Values)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read %s: %w", rng, err)
	}
	if o.Budget != budget {
		return core.MonthOverview{}, fmt.Errorf("read %s: tab belongs to budget %q: %w", rng, o.Budget, core.ErrNotFound)
	}
	return o, nil
}

func (c *Client) ensureTab(ctx context.Context, title string) error {
	c.mu.Lock()
	known := c.knownTabs[title]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	exists := false
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			exists = true
			break
		}
	}
	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add tab %q: %w", title, err)
		}
		slog.InfoContext(ctx, "Created month tab", "component", "sheets", "tab", title)
	}

	c.mu.Lock()
	c.knownTabs[title] = true
	c.mu.Unlock()
	return nil
}

// forgetTabs drops the known-tab cache, e.g. after a tab was removed by hand.
func (c *Client) forgetTabs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.knownTabs = make(map[string]bool)
}

func (c *Client) tabName(m core.MonthKey) string {
	return fmt.Sprintf("%s %02d", yearPrefixedName(c.sheetBase, m.Year()), m.Month())
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
