// Package model defines the core domain types for POI resolution.
package model

import "time"

// Category classifies a POI by the kind of venue it is.
type Category string

// POI categories, matching the OSM extraction vocabulary.
const (
	CategoryLibrary         Category = "library"
	CategoryMuseum          Category = "museum"
	CategoryCommunityCentre Category = "community_centre"
	CategoryTheatre         Category = "theatre"
	CategoryArtsCentre      Category = "arts_centre"
	CategorySchool          Category = "school"
	CategoryUniversity      Category = "university"
	CategoryPark            Category = "park"
	CategoryPlayground      Category = "playground"
	CategorySportsCentre    Category = "sports_centre"
	CategoryTownHall        Category = "townhall"
)

// WebsiteStatus tracks progress of official-website resolution for a POI.
type WebsiteStatus string

// Website track states.
const (
	WebsiteNotStarted WebsiteStatus = "not_started"
	WebsiteProcessing WebsiteStatus = "processing"
	WebsiteFound      WebsiteStatus = "found"
	WebsiteNotFound   WebsiteStatus = "not_found"
	WebsiteFailed     WebsiteStatus = "failed"
)

// SourceStatus tracks progress of events-page resolution for a POI.
type SourceStatus string

// Events track states.
const (
	SourceNotStarted SourceStatus = "not_started"
	SourceProcessing SourceStatus = "processing"
	SourceDiscovered SourceStatus = "discovered"
	SourceNoEvents   SourceStatus = "no_events"
	SourceSkipped    SourceStatus = "skipped"
	SourceFailed     SourceStatus = "failed"
)

// websiteTransitions is the allowed transition table for the website track.
// failed is retry-eligible, so it may re-enter processing via not_started.
var websiteTransitions = map[WebsiteStatus][]WebsiteStatus{
	WebsiteNotStarted: {WebsiteProcessing, WebsiteFound},
	WebsiteProcessing: {WebsiteFound, WebsiteNotFound, WebsiteFailed, WebsiteNotStarted},
	WebsiteFailed:     {WebsiteNotStarted},
}

// sourceTransitions is the allowed transition table for the events track.
var sourceTransitions = map[SourceStatus][]SourceStatus{
	SourceNotStarted: {SourceProcessing, SourceSkipped, SourceDiscovered},
	SourceProcessing: {SourceDiscovered, SourceNoEvents, SourceSkipped, SourceFailed, SourceNotStarted},
	SourceFailed:     {SourceNotStarted},
}

// CanTransition reports whether the website track may move from s to next.
func (s WebsiteStatus) CanTransition(next WebsiteStatus) bool {
	for _, allowed := range websiteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the website track has reached a settled state.
// failed is retry-eligible and therefore not terminal.
func (s WebsiteStatus) Terminal() bool {
	return s == WebsiteFound || s == WebsiteNotFound
}

// CanTransition reports whether the events track may move from s to next.
func (s SourceStatus) CanTransition(next SourceStatus) bool {
	for _, allowed := range sourceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the events track has reached a settled state.
func (s SourceStatus) Terminal() bool {
	return s == SourceDiscovered || s == SourceNoEvents || s == SourceSkipped
}

// Track identifies which of the two per-POI state machines an operation
// applies to.
type Track string

// The two resolution tracks.
const (
	TrackWebsite Track = "website"
	TrackEvents  Track = "events"
)

// POI is a point of interest extracted from OpenStreetMap. The resolver owns
// only the status, discovered_website, and events_url fields; everything else
// is read-only input from the extraction step.
type POI struct {
	ID      string `json:"id"`
	OSMType string `json:"osm_type"`
	OSMID   int64  `json:"osm_id"`

	Name     string   `json:"name"`
	Category Category `json:"category"`
	City     string   `json:"city"`
	State    string   `json:"state"`

	StreetAddress string `json:"street_address,omitempty"`

	OSMWebsite  string `json:"osm_website,omitempty"`
	OSMOperator string `json:"osm_operator,omitempty"`

	WebsiteStatus     WebsiteStatus `json:"website_status"`
	DiscoveredWebsite string        `json:"discovered_website,omitempty"`
	WebsiteNotes      string        `json:"website_notes,omitempty"`

	SourceStatus     SourceStatus `json:"source_status"`
	EventsURL        string       `json:"events_url,omitempty"`
	EventsURLMethod  string       `json:"events_url_method,omitempty"`
	EventsConfidence float64      `json:"events_confidence,omitempty"`
	EventsNotes      string       `json:"events_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Website returns the best available website: the OSM-sourced one if present,
// else the discovered one.
func (p *POI) Website() string {
	if p.OSMWebsite != "" {
		return p.OSMWebsite
	}
	return p.DiscoveredWebsite
}

// HasWebsite reports whether any website is known for the POI.
func (p *POI) HasWebsite() bool {
	return p.OSMWebsite != "" || p.DiscoveredWebsite != ""
}

// sharedCalendarCategories are categories whose instances commonly share one
// municipal or organizational calendar, making events-URL reuse safe when the
// city and operator also match.
var sharedCalendarCategories = map[Category]bool{
	CategoryPark:       true,
	CategoryPlayground: true,
	CategoryLibrary:    true,
	CategorySchool:     true,
}

// SharesCalendar reports whether the category is eligible for events-URL
// reuse across POIs.
func (c Category) SharesCalendar() bool {
	return sharedCalendarCategories[c]
}

// governmentTolerantCategories accept a municipal government site as a valid
// website even when the page is not venue-specific.
var governmentTolerantCategories = map[Category]bool{
	CategoryPark:       true,
	CategoryPlayground: true,
	CategoryTownHall:   true,
}

// GovernmentTolerant reports whether a municipal site counts as this
// category's official website.
func (c Category) GovernmentTolerant() bool {
	return governmentTolerantCategories[c]
}

// websitelessEligibleCategories may enter events resolution without a
// resolved website, because a shared municipal calendar can still serve them.
var websitelessEligibleCategories = map[Category]bool{
	CategoryPark:       true,
	CategoryPlayground: true,
}

// SharesWebsite reports whether POIs of this category in the same city
// typically share one website, such as city parks under a Parks & Rec
// department.
func (c Category) SharesWebsite() bool {
	return websitelessEligibleCategories[c]
}

// WebsitelessEligible reports whether events resolution may start before the
// website track has found anything.
func (c Category) WebsitelessEligible() bool {
	return websitelessEligibleCategories[c]
}

// WebsitelessCategories lists the categories eligible for events resolution
// without a website, for query building.
func WebsitelessCategories() []Category {
	return []Category{CategoryPark, CategoryPlayground}
}
