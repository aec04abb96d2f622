// Package memory implements the three-tier Memory Manager (spec §4.2): ephemeral
// KV+stream, vector, and durable tiers federated under one facade.
package memory

import "context"

// Ephemeral is the short-lived session-state and live-update-stream tier.
type Ephemeral interface {
	Set(ctx context.Context, key, value string, ttlSeconds int) error
	Get(ctx context.Context, key string) (string, bool, error)
	Recent(ctx context.Context, namespace string, n int) ([]string, error)
	Publish(ctx context.Context, stream string, event map[string]any) error
	// Subscribe returns a channel of decoded events; the channel closes when ctx is
	// cancelled or the subscription otherwise ends.
	Subscribe(ctx context.Context, stream string) (<-chan map[string]any, error)
}
