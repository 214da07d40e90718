package app

import (
	"context"
	"fmt"
	"time"

	"cadence/internal/config"
	"cadence/internal/repo"
)

// ResolveUserAndConfig picks the active user for CLI commands: the
// --user override wins, then workspace.user from cadence.yml, then a
// local fallback id. The user row is created on first use.
func ResolveUserAndConfig(ctx context.Context, workspace, userOverride string, r repo.Repo) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	userID := userOverride
	if userID == "" && cfg != nil {
		userID = cfg.Workspace.User
	}
	if userID == "" {
		userID = "local-user"
	}
	if cfg == nil {
		cfg = config.Default(userID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.EnsureUser(ctx, nil, userID, now); err != nil {
		return "", nil, fmt.Errorf("ensure user: %w", err)
	}
	return userID, cfg, nil
}
