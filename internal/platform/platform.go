// Package platform holds the adapters toward external sending platforms.
// The engine commits local state first and calls these adapters best-effort;
// a failed call is logged, never rolled back.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// WarmupSettings is the phase-specific warmup configuration pushed to the
// platform for an entity in recovery.
type WarmupSettings struct {
	DailyVolume     int     `json:"daily_volume"`
	RampUpIncrement int     `json:"ramp_up_increment"`
	TargetReplyRate float64 `json:"target_reply_rate"`
	Enabled         bool    `json:"enabled"`
}

// Adapter is the control surface the engine needs from a sending platform.
// Implementations must honor the request context's deadline; callers always
// pass a bounded timeout.
type Adapter interface {
	// Name identifies the platform for logs and registry keys.
	Name() string

	// RemoveMailboxFromCampaigns detaches a paused mailbox from all active
	// campaigns on the platform.
	RemoveMailboxFromCampaigns(ctx context.Context, externalMailboxID string) error

	// ConfigureWarmup applies warmup settings to a mailbox.
	ConfigureWarmup(ctx context.Context, externalMailboxID string, s WarmupSettings) error

	// SuppressRecipient adds a recipient to the platform's suppression list
	// after a terminal negative event.
	SuppressRecipient(ctx context.Context, email, reason string) error
}

// Sentinel errors shared by adapters.
var (
	ErrNotConfigured = errors.New("platform not configured")
	ErrNotSupported  = errors.New("operation not supported by platform")
)

// Registry resolves adapters by platform name. It is constructed once at
// startup and injected; there is no package-level singleton.
type Registry struct {
	adapters    map[string]Adapter
	defaultName string
}

// NewRegistry builds a registry with the given default platform name.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		defaultName: defaultName,
	}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a platform name. An empty name resolves to the
// default platform. Unknown names are an explicit error, never a nil entry.
func (r *Registry) Get(name string) (Adapter, error) {
	if name == "" {
		name = r.defaultName
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	return a, nil
}

// Names lists the registered platforms.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}
