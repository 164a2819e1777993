package upstream

import "log/slog"

// DownstreamCapabilities is the capability set a downstream client
// advertised in its own initialize request, as far as this layer cares.
type DownstreamCapabilities struct {
	Roots struct {
		ListChanged bool
	}
	Sampling *struct{}
}

// AdvertiseCapabilities implements spec.md section 4.B's "Capability
// advertisement to upstream": the proxy echoes a safe subset of the
// downstream client's advertised capabilities to each upstream on
// initialize, never advertising something the downstream cannot itself
// fulfil. An unknown downstream gets the conservative default:
// roots.listChanged=true, empty sampling.
func AdvertiseCapabilities(downstreamClientID string, downstream *DownstreamCapabilities) map[string]any {
	advertised := map[string]any{
		"roots": map[string]any{"listChanged": true},
	}

	if downstream == nil {
		slog.Info("upstream: advertising conservative default capabilities",
			"downstream_client", downstreamClientID, "reason", "unknown downstream")
		return advertised
	}

	advertised["roots"] = map[string]any{"listChanged": downstream.Roots.ListChanged}
	if downstream.Sampling != nil {
		advertised["sampling"] = map[string]any{}
	}

	slog.Info("upstream: advertising capabilities",
		"downstream_client", downstreamClientID, "advertised", advertised)
	return advertised
}
