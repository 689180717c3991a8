// Package store provides the persistence layer for POI resolution state.
package store

import (
	"context"

	"github.com/superschedules/navigator/internal/model"
)

// ClaimFilter narrows which POIs a worker may claim.
type ClaimFilter struct {
	// ExcludeCategories are never claimed (e.g. schools).
	ExcludeCategories []string
	// Categories, when non-empty, restricts claims to those categories.
	Categories []string
	// City, when non-empty, restricts claims to that city (case-insensitive).
	City string
}

// Counts aggregates status-field tallies for the stats command.
type Counts struct {
	Total   int
	Website map[model.WebsiteStatus]int
	Source  map[model.SourceStatus]int
}

// Processing returns how many POIs sit in a processing state on either
// track. Non-zero counts indicate an unclean prior shutdown.
func (c *Counts) Processing() int {
	return c.Website[model.WebsiteProcessing] + c.Source[model.SourceProcessing]
}

// Store defines the persistence interface for the resolution worker.
type Store interface {
	// POIs
	CreatePOI(ctx context.Context, poi *model.POI) error
	GetPOI(ctx context.Context, id string) (*model.POI, error)

	// ClaimNext atomically selects the next eligible POI and marks the
	// relevant track processing. Website resolution takes priority over
	// events resolution. Returns (nil, "", nil) when nothing is eligible.
	ClaimNext(ctx context.Context, filter ClaimFilter) (*model.POI, model.Track, error)

	// ReleaseClaim returns a claimed track to not_started, used when a run
	// is interrupted before the in-flight POI resolves.
	ReleaseClaim(ctx context.Context, id string, track model.Track) error

	UpdateWebsiteResult(ctx context.Context, id string, status model.WebsiteStatus, website, notes string) error
	UpdateEventsResult(ctx context.Context, id string, status model.SourceStatus, eventsURL, method string, confidence float64, notes string) error

	// FindReusableWebsite returns a website from another POI with the same
	// city, category, and operator scope. Empty string when none qualifies.
	FindReusableWebsite(ctx context.Context, poi *model.POI) (string, error)

	// FindReusableEventsURL returns a shared events URL from another
	// discovered POI with the same city, category, and operator scope, most
	// recently resolved first. Empty string when none qualifies.
	FindReusableEventsURL(ctx context.Context, poi *model.POI) (string, error)

	// ResetProcessing returns every processing POI on either track to
	// not_started and reports how many rows changed.
	ResetProcessing(ctx context.Context) (int, error)

	StatusCounts(ctx context.Context, category, city string) (*Counts, error)

	// Blocklist
	AddBlockedDomain(ctx context.Context, domain, reason string) (bool, error)
	ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error)

	// Worker status
	GetWorkerStatus(ctx context.Context, workerType model.WorkerType) (*model.WorkerStatus, error)
	UpsertWorkerStatus(ctx context.Context, ws *model.WorkerStatus) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
