package workflow

import (
	"context"

	"audiocorpus/internal/stage"
)

// Health runs every registered stage's health check in pipeline order.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		h := stg.handler.HealthCheck(ctx)
		if h.Name == "" {
			h.Name = stg.name
		}
		out = append(out, h)
	}
	return out
}
