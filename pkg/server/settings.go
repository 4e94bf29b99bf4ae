package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/heatpilot/heatpilot/pkg/types"
)

const settingsKey = "settings"

// versionedSettings is the persisted settings envelope. The version drives
// sequential migrations on load.
type versionedSettings struct {
	Version  int            `json:"version"`
	Settings types.Settings `json:"settings"`
}

// getSettingsWithMigration loads the stored settings, applies any pending
// migrations and persists the result when something changed. A missing
// document yields fully defaulted settings.
func (s *Server) getSettingsWithMigration(ctx context.Context) (types.Settings, error) {
	var stored versionedSettings
	found, err := store.GetJSON(ctx, s.store, settingsKey, &stored)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	if !found {
		log.Ctx(ctx).InfoContext(ctx, "no stored settings, using defaults")
	}

	migrated, changed, err := types.MigrateSettings(stored.Settings, stored.Version)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to migrate settings: %w", err)
	}
	if changed || !found || stored.Version != types.CurrentSettingsVersion {
		log.Ctx(ctx).InfoContext(ctx, "migrated settings",
			slog.Int("fromVersion", stored.Version),
			slog.Int("toVersion", types.CurrentSettingsVersion),
		)
		if err := s.store.Set(ctx, settingsKey, versionedSettings{
			Version:  types.CurrentSettingsVersion,
			Settings: migrated,
		}); err != nil {
			return types.Settings{}, fmt.Errorf("failed to save migrated settings: %w", err)
		}
	}
	return migrated, nil
}
