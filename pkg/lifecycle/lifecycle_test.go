package lifecycle

import (
	"os"
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

var syncStart = time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

func lastSync() *wsus.SyncEvent {
	return &wsus.SyncEvent{
		StartTime: syncStart,
		EndTime:   syncStart.Add(12 * time.Minute),
		Result:    "Succeeded",
	}
}

func arrived(offset time.Duration) time.Time {
	return syncStart.Add(offset)
}

func TestClassifyNewUpdate(t *testing.T) {
	u := wsus.Update{
		ID:               uuid.NewString(),
		Title:            "KB5030219 Cumulative Update",
		ArrivalDate:      arrived(time.Hour),
		PublicationState: wsus.PublicationActive,
		IsLatestRevision: true,
	}

	buckets := Classify([]wsus.Update{u}, lastSync())

	require.Len(t, buckets.New, 1)
	assert.Equal(t, u.ID, buckets.New[0].ID)
	assert.Empty(t, buckets.Revisioned)
	assert.Empty(t, buckets.Obsolete)
}

func TestClassifyBucketsAreDisjoint(t *testing.T) {
	updates := []wsus.Update{
		{
			ID: uuid.NewString(), Title: "new",
			ArrivalDate:      arrived(time.Minute),
			PublicationState: wsus.PublicationActive,
			IsLatestRevision: true,
		},
		{
			ID: uuid.NewString(), Title: "revisioned",
			ArrivalDate:        arrived(2 * time.Minute),
			PublicationState:   wsus.PublicationActive,
			HasEarlierRevision: true,
			IsLatestRevision:   true,
		},
		{
			ID: uuid.NewString(), Title: "obsolete",
			ArrivalDate:      arrived(3 * time.Minute),
			PublicationState: wsus.PublicationExpired,
			IsDeclined:       true,
		},
		{
			// Expired but not declined matches no bucket.
			ID: uuid.NewString(), Title: "expired undeclined",
			ArrivalDate:      arrived(4 * time.Minute),
			PublicationState: wsus.PublicationExpired,
			IsLatestRevision: true,
		},
		{
			// Superseded old revision matches no bucket.
			ID: uuid.NewString(), Title: "old revision",
			ArrivalDate:        arrived(5 * time.Minute),
			PublicationState:   wsus.PublicationActive,
			HasEarlierRevision: true,
			IsLatestRevision:   false,
		},
	}

	buckets := Classify(updates, lastSync())

	assert.Len(t, buckets.New, 1)
	assert.Len(t, buckets.Revisioned, 1)
	assert.Len(t, buckets.Obsolete, 1)

	seen := map[string]int{}
	for _, bucket := range [][]wsus.Update{buckets.New, buckets.Revisioned, buckets.Obsolete} {
		for _, u := range bucket {
			seen[u.ID]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "update %s appears in more than one bucket", id)
	}
}

func TestClassifyIgnoresUpdatesBeforeWindow(t *testing.T) {
	u := wsus.Update{
		ID: uuid.NewString(), Title: "stale",
		ArrivalDate:      arrived(-time.Second),
		PublicationState: wsus.PublicationActive,
		IsLatestRevision: true,
	}

	buckets := Classify([]wsus.Update{u}, lastSync())
	assert.Empty(t, buckets.New)
}

func TestClassifyArrivalAtWindowStartIsIncluded(t *testing.T) {
	u := wsus.Update{
		ID: uuid.NewString(), Title: "on the boundary",
		ArrivalDate:      syncStart,
		PublicationState: wsus.PublicationActive,
		IsLatestRevision: true,
	}

	buckets := Classify([]wsus.Update{u}, lastSync())
	assert.Len(t, buckets.New, 1)
}

func TestClassifyDeclinedRevisionIsExcluded(t *testing.T) {
	u := wsus.Update{
		ID: uuid.NewString(), Title: "declined revision",
		ArrivalDate:        arrived(time.Minute),
		PublicationState:   wsus.PublicationActive,
		HasEarlierRevision: true,
		IsLatestRevision:   true,
		IsDeclined:         true,
	}

	buckets := Classify([]wsus.Update{u}, lastSync())
	assert.Empty(t, buckets.Revisioned)
}

func TestClassifyNoSyncHistory(t *testing.T) {
	u := wsus.Update{
		ID: uuid.NewString(), Title: "anything",
		ArrivalDate:      arrived(time.Minute),
		PublicationState: wsus.PublicationActive,
		IsLatestRevision: true,
	}

	buckets := Classify([]wsus.Update{u}, nil)

	assert.False(t, buckets.HasData())
	assert.Empty(t, buckets.New)
	assert.Empty(t, buckets.Revisioned)
	assert.Empty(t, buckets.Obsolete)
}

func TestClassifySortsByTitle(t *testing.T) {
	updates := []wsus.Update{
		{ID: uuid.NewString(), Title: "Zeta", ArrivalDate: arrived(time.Minute),
			PublicationState: wsus.PublicationActive, IsLatestRevision: true},
		{ID: uuid.NewString(), Title: "Alpha", ArrivalDate: arrived(time.Minute),
			PublicationState: wsus.PublicationActive, IsLatestRevision: true},
	}

	buckets := Classify(updates, lastSync())
	require.Len(t, buckets.New, 2)
	assert.Equal(t, "Alpha", buckets.New[0].Title)
	assert.Equal(t, "Zeta", buckets.New[1].Title)
}

func TestClassifyCatalogNoSyncHistory(t *testing.T) {
	snap, err := wsus.NewSnapshot(wsus.Document{
		Updates: []wsus.Update{{
			ID: uuid.NewString(), Title: "anything",
			ArrivalDate:      arrived(time.Minute),
			PublicationState: wsus.PublicationActive,
			IsLatestRevision: true,
		}},
	})
	require.NoError(t, err)

	buckets, err := ClassifyCatalog(snap)
	require.NoError(t, err, "missing sync history is an expected steady state, not a failure")
	assert.False(t, buckets.HasData())
}
