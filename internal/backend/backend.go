// Package backend selects where budget months are exported.
package backend

import (
	"context"
	"fmt"

	"envelope/internal/config"
	"envelope/internal/log"
	"envelope/internal/sheets"
	gsheet "envelope/internal/sheets/google"
	"envelope/internal/sheets/memory"
)

// Backend writes month exports and reads their summaries back.
type Backend interface {
	sheets.MonthExporter
	sheets.OverviewReader
}

// Type names an export backend.
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	c := Config{
		Type:                     Type(appConfig.ExportBackend),
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}
	if c.Type == "" {
		c.Type = MemoryBackend
	}
	return c, c.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("service account credentials are required for sheets backend")
		}
	}
	return nil
}

// New creates the backend named by c.
func New(ctx context.Context, c Config, logger *log.Logger) (Backend, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Type {
	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   c.GoogleSpreadsheetID,
			SheetBase:       c.GoogleSheetName,
			CredentialsJSON: c.GoogleServiceAccountJSON,
			CredentialsFile: c.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		logger.InfoContext(ctx, "Initialized Google Sheets backend", "spreadsheet_id", c.GoogleSpreadsheetID)
		return cli, nil
	default:
		logger.InfoContext(ctx, "Initialized memory backend; exports are kept in process only")
		return memory.New(), nil
	}
}
