package curator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Options{Level: logging.LevelError})
	os.Exit(m.Run())
}

var now = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func supersededUpdate(title string, age time.Duration) wsus.Update {
	return wsus.Update{
		ID:               uuid.NewString(),
		Title:            title,
		Products:         []string{"Windows Server 2022"},
		Classification:   "Security Updates",
		KBArticles:       []string{"KB5029250"},
		SupportURLs:      []string{"https://support.microsoft.com/kb/5029250"},
		CreationDate:     now.Add(-age),
		ArrivalDate:      now.Add(-age),
		PublicationState: wsus.PublicationActive,
		IsSuperseded:     true,
		IsLatestRevision: true,
	}
}

func curatorSnapshot(t *testing.T, updates ...wsus.Update) *wsus.Snapshot {
	t.Helper()
	snap, err := wsus.NewSnapshot(wsus.Document{Updates: updates})
	require.NoError(t, err)
	return snap
}

func exportIn(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "superseded-updates.csv")
}

func backupsBeside(t *testing.T, exportPath string) []string {
	t.Helper()
	matches, err := filepath.Glob(strings.TrimSuffix(exportPath, ".csv") + ".*.bak.csv")
	require.NoError(t, err)
	return matches
}

func TestRunExportsCandidatesSortedByTitleDescending(t *testing.T) {
	declined := supersededUpdate("Declined already", 400*24*time.Hour)
	declined.IsDeclined = true
	notSuperseded := supersededUpdate("Current update", time.Hour)
	notSuperseded.IsSuperseded = false

	snap := curatorSnapshot(t,
		supersededUpdate("Alpha update", time.Hour),
		supersededUpdate("Zeta update", time.Hour),
		declined,
		notSuperseded,
	)

	path := exportIn(t)
	result, err := Run(context.Background(), snap, Options{
		ExportPath:  path,
		SkipDecline: true,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalUpdates)
	assert.Equal(t, 2, result.SupersededTotal)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "Zeta update", result.Records[0].Title)
	assert.Equal(t, "Alpha update", result.Records[1].Title)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "UpdateID;Products;Classification;KBArticles;Title;HasSupersededUpdates;SupportURL", lines[0])
	assert.Contains(t, lines[1], "Zeta update")
	assert.Contains(t, lines[1], ";Security Updates;")
	assert.Contains(t, lines[1], "https://support.microsoft.com/kb/5029250")
}

func TestRunSkipDeclineProducesNoBackup(t *testing.T) {
	snap := curatorSnapshot(t, supersededUpdate("Old one", 365*24*time.Hour))

	path := exportIn(t)
	result, err := Run(context.Background(), snap, Options{
		ExportPath:  path,
		SkipDecline: true,
		Now:         fixedNow,
	}, nil)
	require.NoError(t, err)

	assert.Zero(t, result.DeclinedThisRun)
	assert.Empty(t, result.BackupPath)
	assert.Empty(t, backupsBeside(t, path))
}

func TestRunDeclinesOnlyCandidatesPastExclusionAge(t *testing.T) {
	old := supersededUpdate("Old enough", 120*24*time.Hour)
	recent := supersededUpdate("Too recent", 10*24*time.Hour)
	snap := curatorSnapshot(t, old, recent)

	path := exportIn(t)
	result, err := Run(context.Background(), snap, Options{
		ExportPath:    path,
		ExclusionDays: 90,
		Now:           fixedNow,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeclinedThisRun)
	assert.Zero(t, result.FailedDeclines)

	// The decline must have landed on the catalog.
	updates, err := snap.ListUpdates()
	require.NoError(t, err)
	for _, u := range updates {
		if u.ID == old.ID {
			assert.True(t, u.IsDeclined)
		}
		if u.ID == recent.ID {
			assert.False(t, u.IsDeclined)
		}
	}
}

func TestRunBackupInvariant(t *testing.T) {
	t.Run("no declines, no backup", func(t *testing.T) {
		snap := curatorSnapshot(t, supersededUpdate("Too recent", 24*time.Hour))
		path := exportIn(t)

		result, err := Run(context.Background(), snap, Options{
			ExportPath:    path,
			ExclusionDays: 90,
			Now:           fixedNow,
		}, nil)
		require.NoError(t, err)

		assert.Zero(t, result.DeclinedThisRun)
		assert.Empty(t, backupsBeside(t, path))
	})

	t.Run("declines produce one byte-identical backup", func(t *testing.T) {
		snap := curatorSnapshot(t, supersededUpdate("Old enough", 120*24*time.Hour))
		path := exportIn(t)

		result, err := Run(context.Background(), snap, Options{
			ExportPath:    path,
			ExclusionDays: 90,
			Now:           fixedNow,
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.DeclinedThisRun)

		backups := backupsBeside(t, path)
		require.Len(t, backups, 1)
		assert.Equal(t, result.BackupPath, backups[0])

		exported, err := os.ReadFile(path)
		require.NoError(t, err)
		backedUp, err := os.ReadFile(backups[0])
		require.NoError(t, err)
		assert.Equal(t, exported, backedUp)
	})
}

// failingDeclines wraps a snapshot and fails Decline for chosen updates.
type failingDeclines struct {
	*wsus.Snapshot
	failIDs map[string]bool
}

func (f *failingDeclines) Decline(updateID string) error {
	if f.failIDs[updateID] {
		return errors.New("decline rejected")
	}
	return f.Snapshot.Decline(updateID)
}

func TestRunSingleDeclineFailureDoesNotAbortBatch(t *testing.T) {
	bad := supersededUpdate("Zeta fails", 120*24*time.Hour)
	good := supersededUpdate("Alpha succeeds", 120*24*time.Hour)
	snap := curatorSnapshot(t, bad, good)

	cat := &failingDeclines{Snapshot: snap, failIDs: map[string]bool{bad.ID: true}}

	result, err := Run(context.Background(), cat, Options{
		ExportPath:    exportIn(t),
		ExclusionDays: 90,
		Now:           fixedNow,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeclinedThisRun)
	assert.Equal(t, 1, result.FailedDeclines)
	assert.NotEmpty(t, result.BackupPath)
}

// unavailableCatalog fails every enumeration.
type unavailableCatalog struct{ *wsus.Snapshot }

func (u *unavailableCatalog) ListUpdates() ([]wsus.Update, error) {
	return nil, errors.New("connection refused")
}

func TestRunCatalogUnavailableIsFatal(t *testing.T) {
	snap := curatorSnapshot(t)

	_, err := Run(context.Background(), &unavailableCatalog{snap}, Options{
		ExportPath:  exportIn(t),
		SkipDecline: true,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, wsus.ErrCatalogUnavailable)
	assert.Contains(t, err.Error(), "administrative console")
}

func TestRunCancellationStopsFurtherDeclines(t *testing.T) {
	snap := curatorSnapshot(t,
		supersededUpdate("One", 120*24*time.Hour),
		supersededUpdate("Two", 120*24*time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := exportIn(t)
	result, err := Run(ctx, snap, Options{
		ExportPath:    path,
		ExclusionDays: 90,
		Now:           fixedNow,
	}, nil)
	require.NoError(t, err)

	assert.Zero(t, result.DeclinedThisRun)
	// The export is still written; cancellation only stops declines.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestRunRejectsNonPositiveExclusionAge(t *testing.T) {
	snap := curatorSnapshot(t)

	for _, days := range []int{0, -7} {
		_, err := Run(context.Background(), snap, Options{
			ExportPath:    exportIn(t),
			ExclusionDays: days,
		}, nil)
		assert.Error(t, err, "exclusion age %d must be rejected", days)
	}
}

func TestRunProgressCoversAllCandidates(t *testing.T) {
	snap := curatorSnapshot(t,
		supersededUpdate("One", 120*24*time.Hour),
		supersededUpdate("Two", time.Hour),
		supersededUpdate("Three", time.Hour),
	)

	var calls []int
	var total int
	_, err := Run(context.Background(), snap, Options{
		ExportPath:    exportIn(t),
		ExclusionDays: 90,
		Now:           fixedNow,
	}, func(done, n int) {
		calls = append(calls, done)
		total = n
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, calls)
	assert.Equal(t, 3, total)
}
