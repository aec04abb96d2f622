package llm

import (
	"sort"

	"github.com/flowmesh/swarmcore/core"
)

// candidate is one configured provider considered for "auto" resolution.
type candidate struct {
	name     string
	priority int
	client   Client
}

// Registry holds the set of configured vendor clients and resolves "auto" to the
// highest-priority available cloud provider, skipping local inference endpoints even if
// registered (spec §4.1).
type Registry struct {
	candidates []candidate
	local      *candidate
	telemetry  core.Telemetry
	logger     core.Logger
}

// NewRegistry builds an empty registry. Call Add for each configured provider.
func NewRegistry(logger core.Logger, telemetry core.Telemetry) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Registry{logger: logger, telemetry: telemetry}
}

// Add registers a cloud provider candidate at the given priority (higher wins).
func (r *Registry) Add(name string, priority int, client Client) {
	r.candidates = append(r.candidates, candidate{name: name, priority: priority, client: client})
	sort.SliceStable(r.candidates, func(i, j int) bool {
		return r.candidates[i].priority > r.candidates[j].priority
	})
}

// SetLocal registers a local/self-hosted inference endpoint. It is never selected for
// "auto" but can still be addressed explicitly by name.
func (r *Registry) SetLocal(name string, client Client) {
	r.local = &candidate{name: name, priority: 0, client: client}
}

// Resolve returns the client for an explicit provider name, or the highest-priority
// cloud candidate when name is "auto" or empty.
func (r *Registry) Resolve(name string) (Client, bool) {
	if name == "" || name == "auto" {
		if len(r.candidates) == 0 {
			return nil, false
		}
		top := r.candidates[0]
		r.telemetry.RecordMetric("llm.provider.auto_selected", 1, map[string]string{"provider": top.name})
		return top.client, true
	}

	for _, c := range r.candidates {
		if c.name == name {
			return c.client, true
		}
	}
	if r.local != nil && r.local.name == name {
		return r.local.client, true
	}
	return nil, false
}

// CloudProviders returns the configured cloud provider names in priority order, used for
// round-robin provider assignment by the Delegator (spec §4.3).
func (r *Registry) CloudProviders() []string {
	names := make([]string, 0, len(r.candidates))
	for _, c := range r.candidates {
		names = append(names, c.name)
	}
	return names
}
