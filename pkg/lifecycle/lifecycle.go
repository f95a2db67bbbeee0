// pkg/lifecycle/lifecycle.go - partitions recently arrived updates into
// lifecycle buckets relative to the last synchronization window.

package lifecycle

import (
	"fmt"
	"sort"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// NoDataMessage is what callers show when the catalog has never synchronized.
// Absence of sync history is an expected steady state, not a failure.
const NoDataMessage = "No Data available"

// Buckets holds the classified subset of updates that arrived since the last
// synchronization started. An update may fall into at most one bucket, or
// none at all.
type Buckets struct {
	Window     *wsus.SyncEvent `json:"window,omitempty"`
	New        []wsus.Update   `json:"new"`
	Revisioned []wsus.Update   `json:"revisioned"`
	Obsolete   []wsus.Update   `json:"obsolete"`
}

// HasData reports whether a synchronization window existed to classify against.
func (b Buckets) HasData() bool {
	return b.Window != nil
}

// Classify partitions the updates that arrived on or after the window start.
//
//   - New: active, latest revision, no earlier revision
//   - Revisioned: active, not declined, latest revision of an earlier one
//   - Obsolete: declined and expired
//
// A nil lastSync yields empty buckets; callers report NoDataMessage.
func Classify(updates []wsus.Update, lastSync *wsus.SyncEvent) Buckets {
	buckets := Buckets{Window: lastSync}
	if lastSync == nil {
		return buckets
	}

	for _, u := range updates {
		if u.ArrivalDate.Before(lastSync.StartTime) {
			continue
		}

		expired := u.PublicationState == wsus.PublicationExpired
		switch {
		case !expired && !u.HasEarlierRevision && u.IsLatestRevision:
			buckets.New = append(buckets.New, u)
		case !expired && !u.IsDeclined && u.HasEarlierRevision && u.IsLatestRevision:
			buckets.Revisioned = append(buckets.Revisioned, u)
		case expired && u.IsDeclined:
			buckets.Obsolete = append(buckets.Obsolete, u)
		}
	}

	for _, bucket := range [][]wsus.Update{buckets.New, buckets.Revisioned, buckets.Obsolete} {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Title < bucket[j].Title
		})
	}

	return buckets
}

// ClassifyCatalog fetches the update set and last sync event from the catalog
// and classifies them.
func ClassifyCatalog(cat wsus.Catalog) (Buckets, error) {
	lastSync, err := cat.GetLastSyncEvent()
	if err != nil {
		return Buckets{}, fmt.Errorf("fetching last sync event: %w", err)
	}
	if lastSync == nil {
		logging.Info("No synchronization history in catalog, nothing to classify")
		return Buckets{}, nil
	}

	updates, err := cat.ListUpdates()
	if err != nil {
		return Buckets{}, fmt.Errorf("listing updates: %w", err)
	}

	buckets := Classify(updates, lastSync)
	logging.Info("Classified updates since last sync",
		"since", lastSync.StartTime,
		"new", len(buckets.New),
		"revisioned", len(buckets.Revisioned),
		"obsolete", len(buckets.Obsolete))
	return buckets, nil
}
