// pkg/wsus/catalog.go - the read contract the engine holds against the update service.

package wsus

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrCatalogUnavailable signals that the update service cannot be reached or
// enumerated at all. Callers treat it as fatal for the current operation and
// surface it to the operator; it is never retried automatically.
var ErrCatalogUnavailable = errors.New("update catalog unavailable")

// Catalog is the read-only handle to the update/approval/endpoint data for one
// report run, plus the single mutating action the curator needs (Decline).
// Every call may fail with a transport error; per-call-site policy is up to
// the consumer.
type Catalog interface {
	// ListUpdates returns every update the catalog tracks.
	ListUpdates() ([]Update, error)

	// ListApprovals returns the full approval history for one update,
	// oldest first. An empty history is not an error.
	ListApprovals(updateID string) ([]Approval, error)

	// ListGroups returns all target groups, including the distinguished
	// all-computers group.
	ListGroups() ([]Group, error)

	// ListEndpoints returns the direct members of a group. Nested group
	// membership is not resolved.
	ListEndpoints(group Group) ([]Endpoint, error)

	// GetInstallationSummary returns the endpoint's update counts, or nil
	// if the endpoint has never reported status.
	GetInstallationSummary(endpoint Endpoint) (*InstallationSummary, error)

	// GetInstallationState resolves the rollout state of one update for
	// one group.
	GetInstallationState(update Update, group Group) (InstallationState, error)

	// GetLastSyncEvent returns the most recent synchronization by start
	// time, or nil if the catalog has never synchronized.
	GetLastSyncEvent() (*SyncEvent, error)

	// Decline marks an update as no longer offered to endpoints.
	Decline(updateID string) error
}

// ValidateID checks that an update or group identifier is a well-formed GUID,
// the only identifier format the update service issues.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid catalog identifier %q: %w", id, err)
	}
	return nil
}
