package upstream

import (
	"context"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/transport"
)

func (m *Manager) runHealthLoop() {
	defer m.loopsWG.Done()
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	m.checkAllHealth(context.Background())

	for {
		select {
		case <-ticker.C:
			m.checkAllHealth(context.Background())
		case <-m.stopHealth:
			return
		}
	}
}

func (m *Manager) checkAllHealth(ctx context.Context) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		m.checkOneHealth(ctx, e)
	}
}

// checkOneHealth implements spec.md section 4.B point 2: ping each
// upstream and roll the result into Healthy/Degraded/Unhealthy/Down.
// A disconnected transport is Down; a connected one is pinged with
// tools/list and classified by latency and error outcome.
func (m *Manager) checkOneHealth(ctx context.Context, e *entry) {
	if e.tr.State() != transport.Connected {
		e.setHealth(HealthDown, "transport not connected")
		m.metrics.observeHealth(e.name, HealthDown)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := e.tr.Send(ctx, "tools/list", map[string]any{})
	latency := time.Since(start)

	switch {
	case err != nil && mcperr.Is(err, mcperr.KindTimeout):
		e.setHealth(HealthUnhealthy, err.Error())
	case err != nil:
		e.setHealth(HealthDown, err.Error())
	case latency > 2*time.Second:
		e.setHealth(HealthDegraded, "")
	default:
		e.setHealth(HealthHealthy, "")
	}

	m.metrics.observeHealth(e.name, e.snapshot().Health)
}
