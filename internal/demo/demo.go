// Package demo wires the Upstream Manager, the tool catalog, and the
// enhancement pipeline into one System for tests that need the full
// chain end to end. It is not a shippable binary — spec.md's Non-goals
// exclude any cmd/ server surface — and nothing outside _test.go files
// should import it.
package demo

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
	"github.com/kadirpekel/magictunnel-core/pkg/enhancement"
	"github.com/kadirpekel/magictunnel-core/pkg/router"
	"github.com/kadirpekel/magictunnel-core/pkg/upstream"
)

// Config parameterizes Wire's construction of a System.
type Config struct {
	CatalogDir        string
	CatalogRetention  int
	DiscoveryInterval time.Duration
	HealthInterval    time.Duration
	Enhancement       enhancement.Config
}

// System is every piece spec.md sections 4.C-4.E and 4.G name, wired
// together: upstream discovery feeds the catalog, which in turn feeds
// the enhancement pipeline.
type System struct {
	Manager  *upstream.Manager
	Catalog  *catalog.Store
	Pipeline *enhancement.Pipeline
}

// Wire constructs a System. provider and store drive the enhancement
// pipeline; tests typically pass a pkg/llm/llmtest.Provider (wrapped in
// an llm.SamplingAdapter) and a nil store for an in-memory-only run.
func Wire(cfg Config, metricsReg *prometheus.Registry, provider enhancement.Provider, store *enhancement.PersistentStore) *System {
	catalogStore := catalog.NewStore(cfg.CatalogDir, cfg.CatalogRetention)
	pipeline := enhancement.NewPipeline(cfg.Enhancement, provider, store)

	metrics := upstream.NewMetrics(metricsReg, "magictunnel_demo")

	// Manager.ClientIDResolver and router.New are mutually referential:
	// the router needs a resolver at construction, and the resolver is a
	// Manager method. The closure defers the lookup until mgr exists.
	var mgr *upstream.Manager
	rtr := router.New(func(upstreamName string) (string, bool) { return mgr.ClientIDResolver(upstreamName) })
	mgr = upstream.NewManager(metrics, rtr, cfg.DiscoveryInterval, cfg.HealthInterval)
	mgr.SetCatalog(&enhancingCatalog{store: catalogStore, pipeline: pipeline})

	return &System{Manager: mgr, Catalog: catalogStore, Pipeline: pipeline}
}

// enhancingCatalog adapts catalog.Store into upstream.CatalogWriter while
// additionally notifying the enhancement pipeline of every tool set a
// discovery pass writes, so newly discovered or changed tools get
// enhanced without a separate polling loop.
type enhancingCatalog struct {
	store    *catalog.Store
	pipeline *enhancement.Pipeline
}

func (c *enhancingCatalog) Write(upstreamName string, fresh *catalog.CapabilityFile) error {
	if err := c.store.Write(upstreamName, fresh); err != nil {
		return err
	}
	return c.pipeline.ToolsChanged(context.Background(), fresh.Tools)
}
