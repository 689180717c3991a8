package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebsiteStatusTransitions(t *testing.T) {
	assert.True(t, WebsiteNotStarted.CanTransition(WebsiteProcessing))
	assert.True(t, WebsiteNotStarted.CanTransition(WebsiteFound)) // OSM shortcut
	assert.True(t, WebsiteProcessing.CanTransition(WebsiteFound))
	assert.True(t, WebsiteProcessing.CanTransition(WebsiteNotFound))
	assert.True(t, WebsiteProcessing.CanTransition(WebsiteFailed))
	assert.True(t, WebsiteProcessing.CanTransition(WebsiteNotStarted)) // claim release
	assert.True(t, WebsiteFailed.CanTransition(WebsiteNotStarted))     // retry

	assert.False(t, WebsiteFound.CanTransition(WebsiteProcessing))
	assert.False(t, WebsiteNotFound.CanTransition(WebsiteProcessing))
	assert.False(t, WebsiteNotStarted.CanTransition(WebsiteNotFound))
}

func TestSourceStatusTransitions(t *testing.T) {
	assert.True(t, SourceNotStarted.CanTransition(SourceProcessing))
	assert.True(t, SourceNotStarted.CanTransition(SourceSkipped))
	assert.True(t, SourceProcessing.CanTransition(SourceDiscovered))
	assert.True(t, SourceProcessing.CanTransition(SourceNoEvents))
	assert.True(t, SourceProcessing.CanTransition(SourceFailed))
	assert.True(t, SourceFailed.CanTransition(SourceNotStarted))

	assert.False(t, SourceDiscovered.CanTransition(SourceProcessing))
	assert.False(t, SourceNoEvents.CanTransition(SourceProcessing))
	assert.False(t, SourceSkipped.CanTransition(SourceProcessing))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, WebsiteFound.Terminal())
	assert.True(t, WebsiteNotFound.Terminal())
	assert.False(t, WebsiteFailed.Terminal())
	assert.False(t, WebsiteProcessing.Terminal())

	assert.True(t, SourceDiscovered.Terminal())
	assert.True(t, SourceNoEvents.Terminal())
	assert.True(t, SourceSkipped.Terminal())
	assert.False(t, SourceFailed.Terminal())
}

func TestPOIWebsite(t *testing.T) {
	p := &POI{OSMWebsite: "https://osm.example.org", DiscoveredWebsite: "https://found.example.org"}
	assert.Equal(t, "https://osm.example.org", p.Website())

	p.OSMWebsite = ""
	assert.Equal(t, "https://found.example.org", p.Website())
	assert.True(t, p.HasWebsite())

	p.DiscoveredWebsite = ""
	assert.False(t, p.HasWebsite())
}

func TestCategorySets(t *testing.T) {
	assert.True(t, CategoryPark.SharesCalendar())
	assert.True(t, CategoryLibrary.SharesCalendar())
	assert.False(t, CategoryMuseum.SharesCalendar())

	assert.True(t, CategoryTownHall.GovernmentTolerant())
	assert.True(t, CategoryPlayground.GovernmentTolerant())
	assert.False(t, CategoryTheatre.GovernmentTolerant())

	assert.True(t, CategoryPark.WebsitelessEligible())
	assert.False(t, CategoryLibrary.WebsitelessEligible())
	assert.ElementsMatch(t, []Category{CategoryPark, CategoryPlayground}, WebsitelessCategories())
}

func TestWorkerStatusAlive(t *testing.T) {
	now := time.Now()
	recent := now.Add(-10 * time.Second)
	stale := now.Add(-2 * time.Minute)

	ws := &WorkerStatus{IsRunning: true, LastHeartbeat: &recent}
	assert.True(t, ws.Alive(now))

	ws.LastHeartbeat = &stale
	assert.False(t, ws.Alive(now))

	ws.LastHeartbeat = &recent
	ws.IsRunning = false
	assert.False(t, ws.Alive(now))

	assert.False(t, (&WorkerStatus{IsRunning: true}).Alive(now))
}
