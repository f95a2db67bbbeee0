// pkg/compliance/update.go - resolves per-update installation states for each
// (classification, group) pair and rolls counts up per classification.

package compliance

import (
	"fmt"
	"sort"
	"time"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/progress"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// StateCounts tallies updates by installation state. The seven counts always
// sum to the number of updates evaluated.
type StateCounts struct {
	Installed     int `json:"installed"`
	NotApplicable int `json:"not_applicable"`
	Downloaded    int `json:"downloaded"`
	NotInstalled  int `json:"not_installed"`
	Pending       int `json:"pending"`
	Failed        int `json:"failed"`
	Unknown       int `json:"unknown"`
}

// Add increments the counter matching the state. States outside the known
// seven count as Unknown.
func (c *StateCounts) Add(state wsus.InstallationState) {
	switch state {
	case wsus.StateInstalled:
		c.Installed++
	case wsus.StateNotApplicable:
		c.NotApplicable++
	case wsus.StateDownloaded:
		c.Downloaded++
	case wsus.StateNotInstalled:
		c.NotInstalled++
	case wsus.StatePending:
		c.Pending++
	case wsus.StateFailed:
		c.Failed++
	default:
		c.Unknown++
	}
}

// Merge adds another tally into this one.
func (c *StateCounts) Merge(other StateCounts) {
	c.Installed += other.Installed
	c.NotApplicable += other.NotApplicable
	c.Downloaded += other.Downloaded
	c.NotInstalled += other.NotInstalled
	c.Pending += other.Pending
	c.Failed += other.Failed
	c.Unknown += other.Unknown
}

// Total returns the number of updates tallied.
func (c StateCounts) Total() int {
	return c.Installed + c.NotApplicable + c.Downloaded + c.NotInstalled +
		c.Pending + c.Failed + c.Unknown
}

// DisplayInstalled is the "Installed" figure renderers show: installed plus
// not-applicable.
func (c StateCounts) DisplayInstalled() int {
	return c.Installed + c.NotApplicable
}

// DisplayPending is the "Pending" figure renderers show: downloaded plus
// not-installed plus pending reboot.
func (c StateCounts) DisplayPending() int {
	return c.Downloaded + c.NotInstalled + c.Pending
}

// ClassificationGroupSummary is the state tally for one classification within
// one target group.
type ClassificationGroupSummary struct {
	Group            wsus.Group  `json:"group"`
	Counts           StateCounts `json:"counts"`
	UpdatesEvaluated int         `json:"updates_evaluated"`
}

// ClassificationSummary carries the cross-group total for one classification
// plus the per-group breakdown.
type ClassificationSummary struct {
	Classification string                       `json:"classification"`
	Total          StateCounts                  `json:"total"`
	Groups         []ClassificationGroupSummary `json:"groups"`
}

// ValidateReportDays rejects a non-positive reporting window. The window is
// an explicit operator input; invalid input is re-prompted by the caller,
// never silently defaulted.
func ValidateReportDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("reporting window must be a positive number of days, got %d", days)
	}
	return nil
}

// AggregateUpdates tallies installation states per (classification, group)
// for every approved update created within the last reportDays days, and
// rolls the per-group tallies up into a per-classification total. The
// all-computers group is excluded; membership is flat, nested target groups
// are not resolved.
//
// A failed state lookup is logged and counted as Unknown so that the tallies
// still account for every evaluated update.
func AggregateUpdates(cat wsus.Catalog, allComputersGroup string, reportDays int, onProgress progress.Func) ([]ClassificationSummary, error) {
	return aggregateUpdatesAt(cat, allComputersGroup, reportDays, time.Now(), onProgress)
}

func aggregateUpdatesAt(cat wsus.Catalog, allComputersGroup string, reportDays int, now time.Time, onProgress progress.Func) ([]ClassificationSummary, error) {
	if onProgress == nil {
		onProgress = progress.Discard
	}
	if err := ValidateReportDays(reportDays); err != nil {
		return nil, err
	}

	updates, err := cat.ListUpdates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wsus.ErrCatalogUnavailable, err)
	}
	groups, err := cat.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wsus.ErrCatalogUnavailable, err)
	}
	groups = withoutAllComputers(groups, allComputersGroup)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})

	cutoff := now.AddDate(0, 0, -reportDays)
	byClassification := make(map[string][]wsus.Update)
	for _, u := range updates {
		if !u.IsApproved || u.CreationDate.Before(cutoff) {
			continue
		}
		byClassification[u.Classification] = append(byClassification[u.Classification], u)
	}

	classifications := make([]string, 0, len(byClassification))
	for c := range byClassification {
		classifications = append(classifications, c)
	}
	sort.Strings(classifications)

	totalPairs := len(classifications) * len(groups)
	processed := 0

	summaries := make([]ClassificationSummary, 0, len(classifications))
	for _, classification := range classifications {
		inScope := byClassification[classification]
		summary := ClassificationSummary{
			Classification: classification,
			Groups:         make([]ClassificationGroupSummary, 0, len(groups)),
		}

		for _, group := range groups {
			groupSummary := ClassificationGroupSummary{Group: group}
			for _, u := range inScope {
				state, err := cat.GetInstallationState(u, group)
				if err != nil {
					logging.Warn("Installation state unavailable, counting as unknown",
						"update", u.Title, "group", group.Name, "error", err)
					state = wsus.StateUnknown
				}
				groupSummary.Counts.Add(state)
				groupSummary.UpdatesEvaluated++
			}

			summary.Total.Merge(groupSummary.Counts)
			summary.Groups = append(summary.Groups, groupSummary)

			processed++
			onProgress(processed, totalPairs)
		}

		summaries = append(summaries, summary)
	}

	logging.Info("Aggregated update compliance",
		"classifications", len(classifications),
		"groups", len(groups),
		"window_days", reportDays)
	return summaries, nil
}
