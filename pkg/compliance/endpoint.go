// pkg/compliance/endpoint.go - reduces per-endpoint installation summaries to
// one of four health states and rolls counts up per group.

package compliance

import (
	"fmt"
	"sort"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/progress"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// EndpointState is the single health state a report shows for one endpoint.
type EndpointState string

const (
	EndpointErrors   EndpointState = "Updates with Errors"
	EndpointPending  EndpointState = "Pending Updates"
	EndpointUpToDate EndpointState = "Up-to-Date"
	EndpointNoInfo   EndpointState = "No Information"
)

// GroupSummary is the endpoint-health rollup for one target group. The four
// counts always sum to TotalEndpoints.
type GroupSummary struct {
	Group          wsus.Group `json:"group"`
	TotalEndpoints int        `json:"total_endpoints"`
	Errors         int        `json:"errors"`
	Pending        int        `json:"pending"`
	UpToDate       int        `json:"up_to_date"`
	NoStatus       int        `json:"no_status"`
}

// ClassifyEndpoint reduces an installation summary to one health state.
// First matching rule wins; a nil summary means the endpoint never reported
// and counts as No Information.
func ClassifyEndpoint(sum *wsus.InstallationSummary) EndpointState {
	switch {
	case sum == nil:
		return EndpointNoInfo
	case sum.Failed > 0:
		return EndpointErrors
	case sum.NotInstalled > 0 || sum.Downloaded > 0 || sum.InstalledPendingReboot > 0:
		return EndpointPending
	case sum.Installed > 0 && sum.NotInstalled == 0 && sum.InstalledPendingReboot == 0:
		return EndpointUpToDate
	default:
		return EndpointNoInfo
	}
}

// AggregateEndpoints produces one GroupSummary per target group, excluding
// the distinguished all-computers group to avoid double counting. Group
// membership is taken as flat; nested target groups are not resolved, so
// endpoints in child groups may be counted in each group that lists them
// directly.
//
// A failed summary lookup is logged and counted as No Information, never
// dropped.
func AggregateEndpoints(cat wsus.Catalog, allComputersGroup string, onProgress progress.Func) ([]GroupSummary, error) {
	if onProgress == nil {
		onProgress = progress.Discard
	}

	groups, err := cat.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wsus.ErrCatalogUnavailable, err)
	}
	groups = withoutAllComputers(groups, allComputersGroup)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})

	summaries := make([]GroupSummary, 0, len(groups))
	for gi, group := range groups {
		endpoints, err := cat.ListEndpoints(group)
		if err != nil {
			logging.Error("Skipping group, cannot list endpoints",
				"group", group.Name, "error", err)
			onProgress(gi+1, len(groups))
			continue
		}

		summary := GroupSummary{Group: group, TotalEndpoints: len(endpoints)}
		for _, endpoint := range endpoints {
			sum, err := cat.GetInstallationSummary(endpoint)
			if err != nil {
				logging.Warn("Installation summary unavailable, counting as no information",
					"endpoint", endpoint.Name, "group", group.Name, "error", err)
				sum = nil
			}

			switch ClassifyEndpoint(sum) {
			case EndpointErrors:
				summary.Errors++
			case EndpointPending:
				summary.Pending++
			case EndpointUpToDate:
				summary.UpToDate++
			default:
				summary.NoStatus++
			}
		}

		summaries = append(summaries, summary)
		onProgress(gi+1, len(groups))
	}

	return summaries, nil
}

// withoutAllComputers filters out the distinguished superset group by name.
func withoutAllComputers(groups []wsus.Group, allComputersGroup string) []wsus.Group {
	filtered := make([]wsus.Group, 0, len(groups))
	for _, g := range groups {
		if g.Name == allComputersGroup {
			continue
		}
		filtered = append(filtered, g)
	}
	return filtered
}
