package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superschedules/navigator/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedPOI(t *testing.T, st *SQLiteStore, poi *model.POI) *model.POI {
	t.Helper()
	if poi.OSMType == "" {
		poi.OSMType = "node"
	}
	require.NoError(t, st.CreatePOI(context.Background(), poi))
	return poi
}

// --- POIs ---

func TestSQLite_CreateAndGetPOI(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	poi := seedPOI(t, st, &model.POI{
		OSMID:    12345,
		Name:     "Newton Free Library",
		Category: model.CategoryLibrary,
		City:     "Newton",
		State:    "MA",
	})
	require.NotEmpty(t, poi.ID)

	got, err := st.GetPOI(ctx, poi.ID)
	require.NoError(t, err)
	assert.Equal(t, "Newton Free Library", got.Name)
	assert.Equal(t, model.CategoryLibrary, got.Category)
	assert.Equal(t, model.WebsiteNotStarted, got.WebsiteStatus)
	assert.Equal(t, model.SourceNotStarted, got.SourceStatus)
}

func TestSQLite_GetPOI_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetPOI(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Claiming ---

func TestSQLite_ClaimNext_WebsitePriority(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// One POI needs a website, another already has one and needs events.
	needsWebsite := seedPOI(t, st, &model.POI{
		OSMID: 1, Name: "Arlington Museum", Category: model.CategoryMuseum, City: "Arlington",
	})
	seedPOI(t, st, &model.POI{
		OSMID: 2, Name: "Belmont Library", Category: model.CategoryLibrary, City: "Belmont",
		OSMWebsite: "https://belmontlibrary.org",
	})

	poi, track, err := st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, model.TrackWebsite, track)
	assert.Equal(t, needsWebsite.ID, poi.ID)
	assert.Equal(t, model.WebsiteProcessing, poi.WebsiteStatus)

	// The claimed row is not offered again.
	poi2, track2, err := st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, poi2)
	assert.Equal(t, model.TrackEvents, track2)
	assert.Equal(t, "Belmont Library", poi2.Name)
	assert.Equal(t, model.SourceProcessing, poi2.SourceStatus)
}

func TestSQLite_ClaimNext_NothingEligible(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// No website, no city, not a websiteless-eligible category: nothing to do.
	seedPOI(t, st, &model.POI{
		OSMID: 3, Name: "Somewhere School", Category: model.CategorySchool,
		OSMWebsite: "https://school.example.org",
	})

	poi, track, err := st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	assert.Nil(t, poi)
	assert.Empty(t, track)
}

func TestSQLite_ClaimNext_WebsitelessParkEligible(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedPOI(t, st, &model.POI{
		OSMID: 4, Name: "Menotomy Rocks Park", Category: model.CategoryPark, City: "Arlington",
	})

	// Website track claims first.
	poi, track, err := st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, model.TrackWebsite, track)
	require.NoError(t, st.UpdateWebsiteResult(ctx, poi.ID, model.WebsiteNotFound, "", "no candidates"))

	// Parks still qualify for events resolution with no website.
	poi, track, err = st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, model.TrackEvents, track)
	assert.Equal(t, "Menotomy Rocks Park", poi.Name)
}

func TestSQLite_ClaimNext_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedPOI(t, st, &model.POI{OSMID: 5, Name: "A School", Category: model.CategorySchool, City: "Newton"})
	seedPOI(t, st, &model.POI{OSMID: 6, Name: "B Museum", Category: model.CategoryMuseum, City: "Boston"})

	poi, _, err := st.ClaimNext(ctx, ClaimFilter{ExcludeCategories: []string{"school"}})
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "B Museum", poi.Name)

	poi, _, err = st.ClaimNext(ctx, ClaimFilter{Categories: []string{"school"}, City: "newton"})
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "A School", poi.Name)
}

func TestSQLite_ReleaseClaim(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedPOI(t, st, &model.POI{OSMID: 7, Name: "Theatre", Category: model.CategoryTheatre, City: "Boston"})

	poi, track, err := st.ClaimNext(ctx, ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, poi)

	require.NoError(t, st.ReleaseClaim(ctx, poi.ID, track))

	got, err := st.GetPOI(ctx, poi.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WebsiteNotStarted, got.WebsiteStatus)

	// Releasing an unclaimed row is an error.
	require.Error(t, st.ReleaseClaim(ctx, poi.ID, track))
}

// --- Results ---

func TestSQLite_UpdateResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	poi := seedPOI(t, st, &model.POI{OSMID: 8, Name: "Library", Category: model.CategoryLibrary, City: "Newton"})

	err := st.UpdateWebsiteResult(ctx, poi.ID, model.WebsiteFound, "https://library.example.org", "search hit")
	require.NoError(t, err)

	err = st.UpdateEventsResult(ctx, poi.ID, model.SourceDiscovered, "https://library.example.org/events", "direct_path", 0.9, "calendar page")
	require.NoError(t, err)

	got, err := st.GetPOI(ctx, poi.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WebsiteFound, got.WebsiteStatus)
	assert.Equal(t, "https://library.example.org", got.DiscoveredWebsite)
	assert.Equal(t, model.SourceDiscovered, got.SourceStatus)
	assert.Equal(t, "https://library.example.org/events", got.EventsURL)
	assert.Equal(t, "direct_path", got.EventsURLMethod)
	assert.InDelta(t, 0.9, got.EventsConfidence, 1e-9)
}

// --- Reuse ---

func TestSQLite_FindReusableEventsURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	donor := seedPOI(t, st, &model.POI{
		OSMID: 9, Name: "Spy Pond Park", Category: model.CategoryPark, City: "Arlington",
		OSMOperator: "Town of Arlington",
	})
	require.NoError(t, st.UpdateEventsResult(ctx, donor.ID, model.SourceDiscovered,
		"https://arlingtonma.gov/events", "web_search", 0.8, ""))

	sameOperator := seedPOI(t, st, &model.POI{
		OSMID: 10, Name: "Menotomy Rocks Park", Category: model.CategoryPark, City: "Arlington",
		OSMOperator: "town of arlington",
	})
	url, err := st.FindReusableEventsURL(ctx, sameOperator)
	require.NoError(t, err)
	assert.Equal(t, "https://arlingtonma.gov/events", url)

	otherOperator := seedPOI(t, st, &model.POI{
		OSMID: 11, Name: "Reservoir Park", Category: model.CategoryPark, City: "Arlington",
		OSMOperator: "Friends of the Reservoir",
	})
	url, err = st.FindReusableEventsURL(ctx, otherOperator)
	require.NoError(t, err)
	assert.Empty(t, url)

	otherCity := seedPOI(t, st, &model.POI{
		OSMID: 12, Name: "Elm Park", Category: model.CategoryPark, City: "Worcester",
		OSMOperator: "Town of Arlington",
	})
	url, err = st.FindReusableEventsURL(ctx, otherCity)
	require.NoError(t, err)
	assert.Empty(t, url)

	otherCategory := seedPOI(t, st, &model.POI{
		OSMID: 13, Name: "Arlington Library", Category: model.CategoryLibrary, City: "Arlington",
		OSMOperator: "Town of Arlington",
	})
	url, err = st.FindReusableEventsURL(ctx, otherCategory)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestSQLite_FindReusableEventsURL_BothOperatorsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	donor := seedPOI(t, st, &model.POI{
		OSMID: 14, Name: "North Branch", Category: model.CategoryLibrary, City: "Cambridge",
	})
	require.NoError(t, st.UpdateEventsResult(ctx, donor.ID, model.SourceDiscovered,
		"https://cambridgema.gov/library/events", "direct_path", 0.9, ""))

	seeker := seedPOI(t, st, &model.POI{
		OSMID: 15, Name: "South Branch", Category: model.CategoryLibrary, City: "Cambridge",
	})
	url, err := st.FindReusableEventsURL(ctx, seeker)
	require.NoError(t, err)
	assert.Equal(t, "https://cambridgema.gov/library/events", url)
}

// --- Reset ---

func TestSQLite_ResetProcessing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedPOI(t, st, &model.POI{OSMID: 16, Name: "One", Category: model.CategoryMuseum, City: "Boston"})
	seedPOI(t, st, &model.POI{OSMID: 17, Name: "Two", Category: model.CategoryMuseum, City: "Boston"})

	// Claim both so they sit in processing.
	for i := 0; i < 2; i++ {
		poi, _, err := st.ClaimNext(ctx, ClaimFilter{})
		require.NoError(t, err)
		require.NotNil(t, poi)
	}

	n, err := st.ResetProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := st.StatusCounts(ctx, "", "")
	require.NoError(t, err)
	assert.Zero(t, counts.Processing())
	assert.Equal(t, 2, counts.Website[model.WebsiteNotStarted])
}

// --- Counts ---

func TestSQLite_StatusCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := seedPOI(t, st, &model.POI{OSMID: 18, Name: "A", Category: model.CategoryPark, City: "Newton"})
	seedPOI(t, st, &model.POI{OSMID: 19, Name: "B", Category: model.CategoryLibrary, City: "Boston"})

	require.NoError(t, st.UpdateWebsiteResult(ctx, a.ID, model.WebsiteFound, "https://a.example.org", ""))

	counts, err := st.StatusCounts(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Website[model.WebsiteFound])
	assert.Equal(t, 1, counts.Website[model.WebsiteNotStarted])

	counts, err = st.StatusCounts(ctx, "park", "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)

	counts, err = st.StatusCounts(ctx, "", "boston")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

// --- Blocklist ---

func TestSQLite_BlockedDomains(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.AddBlockedDomain(ctx, "www.Spammy-Aggregator.com", "rejected with high confidence")
	require.NoError(t, err)
	assert.True(t, created)

	// Same domain normalizes to the same row.
	created, err = st.AddBlockedDomain(ctx, "spammy-aggregator.com", "again")
	require.NoError(t, err)
	assert.False(t, created)

	domains, err := st.ListBlockedDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "spammy-aggregator.com", domains[0].Domain)
	assert.Equal(t, "rejected with high confidence", domains[0].Reason)
}

// --- Worker status ---

func TestSQLite_WorkerStatus_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetWorkerStatus(ctx, model.WorkerURLDiscovery)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	ws := &model.WorkerStatus{
		Type:          model.WorkerURLDiscovery,
		Hostname:      "worker-1",
		PID:           4242,
		IsRunning:     true,
		StartedAt:     &now,
		LastHeartbeat: &now,
		CurrentPhase:  "events",
		POIsProcessed: 7,
		SleepSeconds:  1.5,
	}
	require.NoError(t, st.UpsertWorkerStatus(ctx, ws))

	got, err = st.GetWorkerStatus(ctx, model.WorkerURLDiscovery)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "worker-1", got.Hostname)
	assert.Equal(t, 4242, got.PID)
	assert.True(t, got.IsRunning)
	assert.Equal(t, 7, got.POIsProcessed)
	assert.InDelta(t, 1.5, got.SleepSeconds, 1e-9)
	require.NotNil(t, got.LastHeartbeat)

	// Second upsert overwrites in place.
	ws.IsRunning = false
	ws.POIsProcessed = 8
	require.NoError(t, st.UpsertWorkerStatus(ctx, ws))

	got, err = st.GetWorkerStatus(ctx, model.WorkerURLDiscovery)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsRunning)
	assert.Equal(t, 8, got.POIsProcessed)
}

func TestSQLite_FindReusableWebsite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedPOI(t, st, &model.POI{
		OSMID:             1,
		Name:              "Greene's Field",
		Category:          model.CategoryPark,
		City:              "Needham",
		DiscoveredWebsite: "https://needhamma.gov/parks",
		WebsiteStatus:     model.WebsiteFound,
	})

	park := &model.POI{Name: "Memorial Park", Category: model.CategoryPark, City: "needham"}
	website, err := st.FindReusableWebsite(ctx, park)
	require.NoError(t, err)
	assert.Equal(t, "https://needhamma.gov/parks", website)

	// The most recently updated sibling wins.
	seedPOI(t, st, &model.POI{
		OSMID:      2,
		Name:       "Ridge Hill Reservation",
		Category:   model.CategoryPark,
		City:       "Needham",
		OSMWebsite: "https://needhamma.gov/recreation",
	})
	website, err = st.FindReusableWebsite(ctx, park)
	require.NoError(t, err)
	assert.Equal(t, "https://needhamma.gov/recreation", website)

	// Scoping: wrong city, wrong category, or a different operator all miss.
	otherCity := &model.POI{Name: "Hunnewell Park", Category: model.CategoryPark, City: "Wellesley"}
	website, err = st.FindReusableWebsite(ctx, otherCity)
	require.NoError(t, err)
	assert.Empty(t, website)

	playground := &model.POI{Name: "Mills Field", Category: model.CategoryPlayground, City: "Needham"}
	website, err = st.FindReusableWebsite(ctx, playground)
	require.NoError(t, err)
	assert.Empty(t, website)

	operated := &model.POI{Name: "Trustees Field", Category: model.CategoryPark, City: "Needham", OSMOperator: "The Trustees"}
	website, err = st.FindReusableWebsite(ctx, operated)
	require.NoError(t, err)
	assert.Empty(t, website)
}
