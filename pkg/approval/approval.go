// pkg/approval/approval.go - assigns each recently arrived update a single
// compliance label from its publication state, decline flag and approval
// history.

package approval

import (
	"fmt"
	"time"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// Label is the compliance label a report shows for one update.
type Label string

const (
	LabelOK                       Label = "OK"
	LabelDeclined                 Label = "DECLINED"
	LabelObsolete                 Label = "OBSOLETE"
	LabelObsoleteApproved         Label = "OBSOLETE-APPROVED"
	LabelObsoleteApprovedDeclined Label = "OBSOLETE-APPROVED-DECLINED"
	LabelNone                     Label = "-"
)

// Resolve assigns exactly one label to an update. The rule order is
// load-bearing and must not change:
//
//  1. Expiry dominates everything. An expired update is OBSOLETE, refined to
//     OBSOLETE-APPROVED if it was ever approved for install, and to
//     OBSOLETE-APPROVED-DECLINED if additionally declined.
//  2. A current decline on an active update wins over any approval history.
//  3. Only an Install approval created inside the sync window yields OK.
//     Older approvals on a still-active update yield "-", not OK.
func Resolve(u wsus.Update, history []wsus.Approval, windowStart time.Time) Label {
	wasApprovedBefore := wsus.WasApproved(history)

	if u.PublicationState == wsus.PublicationExpired {
		if wasApprovedBefore && u.IsDeclined {
			return LabelObsoleteApprovedDeclined
		}
		if wasApprovedBefore {
			return LabelObsoleteApproved
		}
		return LabelObsolete
	}

	if u.IsDeclined {
		return LabelDeclined
	}

	if wsus.ApprovedSince(history, windowStart) {
		return LabelOK
	}

	return LabelNone
}

// ResolveAll labels every update that arrived on or after the last sync
// window start. Updates whose approval history cannot be fetched are logged
// and skipped; the rest of the batch continues. With no sync history the
// result is empty and callers report lifecycle.NoDataMessage.
func ResolveAll(cat wsus.Catalog) (map[string]Label, error) {
	lastSync, err := cat.GetLastSyncEvent()
	if err != nil {
		return nil, fmt.Errorf("fetching last sync event: %w", err)
	}
	if lastSync == nil {
		return map[string]Label{}, nil
	}

	updates, err := cat.ListUpdates()
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}

	labels := make(map[string]Label)
	skipped := 0
	for _, u := range updates {
		if u.ArrivalDate.Before(lastSync.StartTime) {
			continue
		}

		history, err := cat.ListApprovals(u.ID)
		if err != nil {
			logging.Warn("Skipping update, approval history unavailable",
				"update", u.Title, "id", u.ID, "error", err)
			skipped++
			continue
		}

		labels[u.ID] = Resolve(u, history, lastSync.StartTime)
	}

	if skipped > 0 {
		logging.Warn("Some updates were skipped during labeling", "skipped", skipped)
	}
	return labels, nil
}
