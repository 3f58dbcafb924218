package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"envelope/internal/core"
)

// LoadSettings reads budget display settings from a TOML file.
//
// The optional top-level "currency" key selects a preset (EUR, BRL, USD);
// date_format and the [currency_format] table override individual fields:
//
//	currency = "EUR"
//	date_format = "2006-01-02"
//
//	[currency_format]
//	display_symbol = false
//
// An empty path returns the default settings.
func LoadSettings(path string) (core.BudgetSettings, error) {
	if path == "" {
		return core.DefaultSettings(), nil
	}

	var head struct {
		Currency string `toml:"currency"`
	}
	if _, err := toml.DecodeFile(path, &head); err != nil {
		return core.BudgetSettings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	settings := core.DefaultSettings()
	if head.Currency != "" {
		preset, err := core.SettingsFor(core.CurrencyISOCode(head.Currency))
		if err != nil {
			return core.BudgetSettings{}, fmt.Errorf("settings %s: %w", path, err)
		}
		settings = preset
	}
	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return core.BudgetSettings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return core.BudgetSettings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return settings, nil
}
