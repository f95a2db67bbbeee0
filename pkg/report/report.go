// pkg/report/report.go - assembles the engine outputs into one structured
// report document for downstream renderers.

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/windowsadmins/wsusreport/pkg/approval"
	"github.com/windowsadmins/wsusreport/pkg/compliance"
	"github.com/windowsadmins/wsusreport/pkg/curator"
	"github.com/windowsadmins/wsusreport/pkg/lifecycle"
	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/progress"
	"github.com/windowsadmins/wsusreport/pkg/version"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// RunHost records where and when a report was generated.
type RunHost struct {
	Hostname      string `json:"hostname"`
	Platform      string `json:"platform,omitempty"`
	OS            string `json:"os,omitempty"`
	UptimeSeconds uint64 `json:"uptime_seconds,omitempty"`
	EngineVersion string `json:"engine_version"`
}

// Params are the operator inputs for one report run.
type Params struct {
	AllComputersGroup string
	ReportDays        int
	ExclusionDays     int
	SkipDecline       bool
	ExportPath        string
}

// Report bundles everything a renderer needs for one run. It is a pure
// function of the catalog snapshot and the params; re-running against an
// unchanged snapshot yields identical content apart from GeneratedAt.
type Report struct {
	GeneratedAt        time.Time                          `json:"generated_at"`
	Host               RunHost                            `json:"host"`
	SyncResult         string                             `json:"sync_result"`
	Lifecycle          lifecycle.Buckets                  `json:"lifecycle"`
	Labels             map[string]approval.Label          `json:"labels"`
	EndpointCompliance []compliance.GroupSummary          `json:"endpoint_compliance"`
	UpdateCompliance   []compliance.ClassificationSummary `json:"update_compliance"`
	Curation           *curator.Result                    `json:"curation,omitempty"`
}

// Assemble runs the four engine components against the catalog and bundles
// their outputs. Each component reads only the shared snapshot, never another
// component's output.
func Assemble(ctx context.Context, cat wsus.Catalog, params Params, onProgress progress.Func) (*Report, error) {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Host:        collectRunHost(),
	}

	buckets, err := lifecycle.ClassifyCatalog(cat)
	if err != nil {
		return nil, fmt.Errorf("classifying sync window: %w", err)
	}
	r.Lifecycle = buckets
	if buckets.HasData() {
		r.SyncResult = buckets.Window.Result
	} else {
		r.SyncResult = lifecycle.NoDataMessage
	}

	labels, err := approval.ResolveAll(cat)
	if err != nil {
		return nil, fmt.Errorf("resolving approval labels: %w", err)
	}
	r.Labels = labels

	endpointSummaries, err := compliance.AggregateEndpoints(cat, params.AllComputersGroup, onProgress)
	if err != nil {
		return nil, fmt.Errorf("aggregating endpoint compliance: %w", err)
	}
	r.EndpointCompliance = endpointSummaries

	updateSummaries, err := compliance.AggregateUpdates(cat, params.AllComputersGroup, params.ReportDays, onProgress)
	if err != nil {
		return nil, fmt.Errorf("aggregating update compliance: %w", err)
	}
	r.UpdateCompliance = updateSummaries

	if params.ExportPath != "" {
		curation, err := curator.Run(ctx, cat, curator.Options{
			ExportPath:    params.ExportPath,
			ExclusionDays: params.ExclusionDays,
			SkipDecline:   params.SkipDecline,
		}, onProgress)
		if err != nil {
			return nil, fmt.Errorf("curating superseded updates: %w", err)
		}
		r.Curation = curation
	}

	return r, nil
}

// WriteJSON writes the report document to path, creating parent directories.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	logging.Info("Wrote report document", "path", path)
	return nil
}

// collectRunHost stamps the generating host into the report header. Host
// lookups are best effort; a report is never blocked on them.
func collectRunHost() RunHost {
	rh := RunHost{EngineVersion: version.Version().Version}

	if hostname, err := os.Hostname(); err == nil {
		rh.Hostname = hostname
	}
	if info, err := host.Info(); err == nil {
		rh.Platform = info.Platform
		rh.OS = info.OS
		rh.UptimeSeconds = info.Uptime
	} else {
		logging.Debug("Host info unavailable", "error", err)
	}

	return rh
}
