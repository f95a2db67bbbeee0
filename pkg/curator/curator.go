// pkg/curator/curator.go - selects superseded updates catalog-wide, exports
// them to CSV, and optionally declines the ones past the exclusion age.

package curator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/progress"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

// exportHeader is the first row of the superseded-updates CSV export.
var exportHeader = []string{
	"UpdateID", "Products", "Classification", "KBArticles",
	"Title", "HasSupersededUpdates", "SupportURL",
}

// Options configures one curation run.
type Options struct {
	ExportPath    string           // CSV export destination
	ExclusionDays int              // decline candidates older than this many days
	SkipDecline   bool             // export only, never decline
	Now           func() time.Time // clock override for tests; nil means time.Now
}

// ExportRecord is one row of the CSV export.
type ExportRecord struct {
	UpdateID             string `json:"update_id"`
	Products             string `json:"products"`
	Classification       string `json:"classification"`
	KBArticles           string `json:"kb_articles"`
	Title                string `json:"title"`
	HasSupersededUpdates bool   `json:"has_superseded_updates"`
	SupportURL           string `json:"support_url"`
}

// Result summarizes one curation run.
type Result struct {
	TotalUpdates    int            `json:"total_updates"`
	SupersededTotal int            `json:"superseded_total"`
	DeclinedThisRun int            `json:"declined_this_run"`
	FailedDeclines  int            `json:"failed_declines"`
	Records         []ExportRecord `json:"records"`
	ExportPath      string         `json:"export_path"`
	BackupPath      string         `json:"backup_path,omitempty"`
}

// ValidateExclusionDays rejects a non-positive exclusion age. The age is an
// explicit operator input and is never silently defaulted.
func ValidateExclusionDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("exclusion age must be a positive number of days, got %d", days)
	}
	return nil
}

// Run curates the superseded updates in the catalog.
//
// The CSV export is always written, whether or not declining runs. Declines
// are issued one by one; a single failure is logged and counted, never fatal.
// If at least one decline succeeded, the export is copied to a timestamped
// backup recording what was true right before the batch ran. Cancelling ctx
// stops further declines but never undoes one that already succeeded.
//
// Failure to enumerate the catalog at all aborts the operation; the operator
// should decline manually via the administrative console.
func Run(ctx context.Context, cat wsus.Catalog, opts Options, onProgress progress.Func) (*Result, error) {
	if onProgress == nil {
		onProgress = progress.Discard
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	if !opts.SkipDecline {
		if err := ValidateExclusionDays(opts.ExclusionDays); err != nil {
			return nil, err
		}
	}

	updates, err := cat.ListUpdates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v; decline superseded updates manually via the administrative console",
			wsus.ErrCatalogUnavailable, err)
	}

	var candidates []wsus.Update
	for _, u := range updates {
		if u.IsSuperseded && !u.IsDeclined {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Title > candidates[j].Title
	})

	result := &Result{
		TotalUpdates:    len(updates),
		SupersededTotal: len(candidates),
		Records:         make([]ExportRecord, 0, len(candidates)),
		ExportPath:      opts.ExportPath,
	}
	for _, u := range candidates {
		result.Records = append(result.Records, ExportRecord{
			UpdateID:             u.ID,
			Products:             strings.Join(u.Products, ", "),
			Classification:       u.Classification,
			KBArticles:           strings.Join(u.KBArticles, ", "),
			Title:                u.Title,
			HasSupersededUpdates: u.HasSupersededUpdates,
			SupportURL:           strings.Join(u.SupportURLs, ", "),
		})
	}

	if err := WriteExport(opts.ExportPath, result.Records); err != nil {
		return nil, err
	}
	logging.Info("Exported superseded updates",
		"path", opts.ExportPath, "candidates", len(candidates))

	if opts.SkipDecline {
		return result, nil
	}

	cutoff := now().AddDate(0, 0, -opts.ExclusionDays)
	for i, u := range candidates {
		if ctx.Err() != nil {
			logging.Warn("Decline batch cancelled, no further declines will be issued",
				"processed", i, "of", len(candidates))
			break
		}

		if !u.CreationDate.Before(cutoff) {
			onProgress(i+1, len(candidates))
			continue
		}

		if err := cat.Decline(u.ID); err != nil {
			logging.Error("Failed to decline update, continuing",
				"update", u.Title, "id", u.ID, "error", err)
			result.FailedDeclines++
		} else {
			logging.Info("Declined superseded update", "update", u.Title, "id", u.ID)
			result.DeclinedThisRun++
		}
		onProgress(i+1, len(candidates))
	}

	if result.DeclinedThisRun > 0 {
		backupPath, err := backupExport(opts.ExportPath, now())
		if err != nil {
			logging.Error("Failed to back up export", "error", err)
			return result, err
		}
		result.BackupPath = backupPath
		logging.Info("Backed up export prior to decline batch", "path", backupPath)
	}

	return result, nil
}

// WriteExport writes the records as a semicolon-delimited UTF-8 CSV with a
// header row.
func WriteExport(path string, records []ExportRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'

	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.UpdateID,
			r.Products,
			r.Classification,
			r.KBArticles,
			r.Title,
			strconv.FormatBool(r.HasSupersededUpdates),
			r.SupportURL,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	return nil
}

// backupExport copies the export byte-for-byte to a timestamped path beside it.
func backupExport(exportPath string, now time.Time) (string, error) {
	data, err := os.ReadFile(exportPath)
	if err != nil {
		return "", fmt.Errorf("reading export for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak.csv",
		strings.TrimSuffix(exportPath, ".csv"), now.Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}
