package supervisor

import (
	"context"
	"fmt"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/registry"
)

// Creator creates sessions. *Supervisor implements it.
type Creator interface {
	CreateSession(ctx context.Context, id, description string) error
}

// Bootstrap recreates every persisted session in registry order. It runs
// once at startup, before the server accepts requests; any error is fatal.
func Bootstrap(ctx context.Context, store registry.Store, creator Creator) (int, error) {
	descriptors, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load session registry: %w", err)
	}

	for i, d := range descriptors {
		if err := creator.CreateSession(ctx, d.ID, d.Description); err != nil {
			return i, fmt.Errorf("bootstrap session %s: %w", d.ID, err)
		}
	}

	logging.Info().Int("sessions", len(descriptors)).Msg("Sessions restored")
	return len(descriptors), nil
}
