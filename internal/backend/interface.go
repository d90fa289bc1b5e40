// Package backend builds the provider registry and run exporter from
// configuration, and wires them into the sync and categorization services.
package backend

import (
	"context"

	"finsync/internal/provider"
	"finsync/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the provider registry, the run exporter and an
// optional cleanup function.
type BackendResult struct {
	Providers provider.Registry
	Exporter  sheets.RunExporter
	// Runs reads exported runs back when the exporter supports it.
	Runs    sheets.RunLister
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Mode selects real provider adapters or the in-process sandbox.
type Mode string

const (
	LiveMode    Mode = "live"
	SandboxMode Mode = "sandbox"
)

// String implements fmt.Stringer
func (m Mode) String() string {
	return string(m)
}

// IsValid returns true if the mode is known
func (m Mode) IsValid() bool {
	switch m {
	case LiveMode, SandboxMode:
		return true
	default:
		return false
	}
}
