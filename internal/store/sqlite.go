package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/superschedules/navigator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pois (
	id                 TEXT PRIMARY KEY,
	osm_type           TEXT NOT NULL,
	osm_id             INTEGER NOT NULL,
	name               TEXT NOT NULL,
	category           TEXT NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	street_address     TEXT NOT NULL DEFAULT '',
	osm_website        TEXT NOT NULL DEFAULT '',
	osm_operator       TEXT NOT NULL DEFAULT '',
	website_status     TEXT NOT NULL DEFAULT 'not_started',
	discovered_website TEXT NOT NULL DEFAULT '',
	website_notes      TEXT NOT NULL DEFAULT '',
	source_status      TEXT NOT NULL DEFAULT 'not_started',
	events_url         TEXT NOT NULL DEFAULT '',
	events_url_method  TEXT NOT NULL DEFAULT '',
	events_confidence  REAL NOT NULL DEFAULT 0,
	events_notes       TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	UNIQUE (osm_type, osm_id)
);

CREATE TABLE IF NOT EXISTS blocked_domains (
	domain     TEXT PRIMARY KEY,
	reason     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS worker_status (
	worker_type        TEXT PRIMARY KEY,
	hostname           TEXT NOT NULL DEFAULT '',
	pid                INTEGER NOT NULL DEFAULT 0,
	is_running         INTEGER NOT NULL DEFAULT 0,
	started_at         DATETIME,
	last_heartbeat     DATETIME,
	current_poi_id     TEXT NOT NULL DEFAULT '',
	current_poi_name   TEXT NOT NULL DEFAULT '',
	current_phase      TEXT NOT NULL DEFAULT '',
	pois_processed     INTEGER NOT NULL DEFAULT 0,
	discoveries_found  INTEGER NOT NULL DEFAULT 0,
	discoveries_reuse  INTEGER NOT NULL DEFAULT 0,
	websites_found     INTEGER NOT NULL DEFAULT 0,
	websites_not_found INTEGER NOT NULL DEFAULT 0,
	errors             INTEGER NOT NULL DEFAULT 0,
	sleep_seconds      REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pois_website_status ON pois(website_status);
CREATE INDEX IF NOT EXISTS idx_pois_source_status ON pois(source_status);
CREATE INDEX IF NOT EXISTS idx_pois_city_category ON pois(city, category);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const poiColumns = `id, osm_type, osm_id, name, category, city, state, street_address,
	osm_website, osm_operator,
	website_status, discovered_website, website_notes,
	source_status, events_url, events_url_method, events_confidence, events_notes,
	created_at, updated_at`

func (s *SQLiteStore) CreatePOI(ctx context.Context, poi *model.POI) error {
	if poi.ID == "" {
		poi.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	poi.CreatedAt = now
	poi.UpdatedAt = now
	if poi.WebsiteStatus == "" {
		poi.WebsiteStatus = model.WebsiteNotStarted
	}
	if poi.SourceStatus == "" {
		poi.SourceStatus = model.SourceNotStarted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pois (`+poiColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		poi.ID, poi.OSMType, poi.OSMID, poi.Name, string(poi.Category), poi.City, poi.State, poi.StreetAddress,
		poi.OSMWebsite, poi.OSMOperator,
		string(poi.WebsiteStatus), poi.DiscoveredWebsite, poi.WebsiteNotes,
		string(poi.SourceStatus), poi.EventsURL, poi.EventsURLMethod, poi.EventsConfidence, poi.EventsNotes,
		poi.CreatedAt, poi.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert poi %s", poi.Name)
}

func (s *SQLiteStore) GetPOI(ctx context.Context, id string) (*model.POI, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+poiColumns+` FROM pois WHERE id = ?`, id,
	)
	poi, err := scanPOI(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("poi not found: %s", id)
	}
	return poi, err
}

// websitelessClause matches categories allowed into events resolution with no
// website on file.
func websitelessClause() (string, []any) {
	cats := model.WebsitelessCategories()
	args := make([]any, len(cats))
	for i, c := range cats {
		args[i] = string(c)
	}
	return "category IN (" + placeholders(len(cats)) + ")", args
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, filter ClaimFilter) (*model.POI, model.Track, error) {
	// Optimistic claim loop: select a candidate, then take it only if its
	// status is still unclaimed. A lost race moves on to the next candidate.
	for attempt := 0; attempt < 5; attempt++ {
		poi, track, err := s.nextCandidate(ctx, filter)
		if err != nil {
			return nil, "", err
		}
		if poi == nil {
			return nil, "", nil
		}

		var res sql.Result
		now := time.Now().UTC()
		switch track {
		case model.TrackWebsite:
			res, err = s.db.ExecContext(ctx,
				`UPDATE pois SET website_status = ?, updated_at = ? WHERE id = ? AND website_status = ?`,
				string(model.WebsiteProcessing), now, poi.ID, string(model.WebsiteNotStarted),
			)
		case model.TrackEvents:
			res, err = s.db.ExecContext(ctx,
				`UPDATE pois SET source_status = ?, updated_at = ? WHERE id = ? AND source_status = ?`,
				string(model.SourceProcessing), now, poi.ID, string(model.SourceNotStarted),
			)
		}
		if err != nil {
			return nil, "", eris.Wrapf(err, "sqlite: claim poi %s", poi.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, "", eris.Wrap(err, "sqlite: claim rows affected")
		}
		if n == 0 {
			continue
		}

		if track == model.TrackWebsite {
			poi.WebsiteStatus = model.WebsiteProcessing
		} else {
			poi.SourceStatus = model.SourceProcessing
		}
		poi.UpdatedAt = now
		return poi, track, nil
	}
	return nil, "", nil
}

func (s *SQLiteStore) nextCandidate(ctx context.Context, filter ClaimFilter) (*model.POI, model.Track, error) {
	where, args := claimFilterClauses(filter)

	// Website resolution runs first so the events track has websites to work
	// with.
	query := `SELECT ` + poiColumns + ` FROM pois
		WHERE website_status = ? AND osm_website = '' AND city <> ''` + where + `
		ORDER BY category, city, name LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, append([]any{string(model.WebsiteNotStarted)}, args...)...)
	poi, err := scanPOI(row)
	if err == nil {
		return poi, model.TrackWebsite, nil
	}
	if err != sql.ErrNoRows {
		return nil, "", eris.Wrap(err, "sqlite: next website candidate")
	}

	wl, wlArgs := websitelessClause()
	query = `SELECT ` + poiColumns + ` FROM pois
		WHERE source_status = ? AND city <> ''
		AND (osm_website <> '' OR discovered_website <> '' OR ` + wl + `)` + where + `
		ORDER BY category, city, name LIMIT 1`
	eventsArgs := append([]any{string(model.SourceNotStarted)}, wlArgs...)
	eventsArgs = append(eventsArgs, args...)
	row = s.db.QueryRowContext(ctx, query, eventsArgs...)
	poi, err = scanPOI(row)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", eris.Wrap(err, "sqlite: next events candidate")
	}
	return poi, model.TrackEvents, nil
}

func (s *SQLiteStore) ReleaseClaim(ctx context.Context, id string, track model.Track) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	switch track {
	case model.TrackWebsite:
		res, err = s.db.ExecContext(ctx,
			`UPDATE pois SET website_status = ?, updated_at = ? WHERE id = ? AND website_status = ?`,
			string(model.WebsiteNotStarted), now, id, string(model.WebsiteProcessing),
		)
	case model.TrackEvents:
		res, err = s.db.ExecContext(ctx,
			`UPDATE pois SET source_status = ?, updated_at = ? WHERE id = ? AND source_status = ?`,
			string(model.SourceNotStarted), now, id, string(model.SourceProcessing),
		)
	default:
		return eris.Errorf("unknown track: %s", track)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: release claim %s", id)
	}
	return checkRowsAffected(res, "claimed poi", id)
}

func (s *SQLiteStore) UpdateWebsiteResult(ctx context.Context, id string, status model.WebsiteStatus, website, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pois SET website_status = ?, discovered_website = ?, website_notes = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), website, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update website result %s", id)
	}
	return checkRowsAffected(res, "poi", id)
}

func (s *SQLiteStore) UpdateEventsResult(ctx context.Context, id string, status model.SourceStatus, eventsURL, method string, confidence float64, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pois SET source_status = ?, events_url = ?, events_url_method = ?, events_confidence = ?, events_notes = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), eventsURL, method, confidence, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update events result %s", id)
	}
	return checkRowsAffected(res, "poi", id)
}

func (s *SQLiteStore) FindReusableWebsite(ctx context.Context, poi *model.POI) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT CASE WHEN osm_website <> '' THEN osm_website ELSE discovered_website END
		 FROM pois
		 WHERE id <> ?
		 AND lower(city) = lower(?)
		 AND category = ?
		 AND (osm_website <> '' OR discovered_website <> '')
		 AND ((osm_operator = '' AND ? = '') OR lower(osm_operator) = lower(?))
		 ORDER BY updated_at DESC LIMIT 1`,
		poi.ID, poi.City, string(poi.Category),
		poi.OSMOperator, poi.OSMOperator,
	)
	var website string
	err := row.Scan(&website)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find reusable website")
	}
	return website, nil
}

func (s *SQLiteStore) FindReusableEventsURL(ctx context.Context, poi *model.POI) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT events_url FROM pois
		 WHERE id <> ?
		 AND lower(city) = lower(?)
		 AND category = ?
		 AND source_status = ?
		 AND events_url <> ''
		 AND ((osm_operator = '' AND ? = '') OR lower(osm_operator) = lower(?))
		 ORDER BY updated_at DESC LIMIT 1`,
		poi.ID, poi.City, string(poi.Category), string(model.SourceDiscovered),
		poi.OSMOperator, poi.OSMOperator,
	)
	var eventsURL string
	err := row.Scan(&eventsURL)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find reusable events url")
	}
	return eventsURL, nil
}

func (s *SQLiteStore) ResetProcessing(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	total := 0

	res, err := s.db.ExecContext(ctx,
		`UPDATE pois SET website_status = ?, updated_at = ? WHERE website_status = ?`,
		string(model.WebsiteNotStarted), now, string(model.WebsiteProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset website processing")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	total += int(n)

	res, err = s.db.ExecContext(ctx,
		`UPDATE pois SET source_status = ?, updated_at = ? WHERE source_status = ?`,
		string(model.SourceNotStarted), now, string(model.SourceProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset source processing")
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return total + int(n), nil
}

func (s *SQLiteStore) StatusCounts(ctx context.Context, category, city string) (*Counts, error) {
	query := `SELECT website_status, source_status FROM pois WHERE 1=1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if city != "" {
		query += ` AND lower(city) = lower(?)`
		args = append(args, city)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()

	counts := &Counts{
		Website: map[model.WebsiteStatus]int{},
		Source:  map[model.SourceStatus]int{},
	}
	for rows.Next() {
		var ws, ss string
		if err := rows.Scan(&ws, &ss); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status counts")
		}
		counts.Total++
		counts.Website[model.WebsiteStatus(ws)]++
		counts.Source[model.SourceStatus(ss)]++
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: status counts iterate")
}

func (s *SQLiteStore) AddBlockedDomain(ctx context.Context, domain, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO blocked_domains (domain, reason, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (domain) DO NOTHING`,
		model.NormalizeDomain(domain), reason, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: add blocked domain %s", domain)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, reason, created_at FROM blocked_domains ORDER BY domain`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list blocked domains")
	}
	defer rows.Close()

	var domains []model.BlockedDomain
	for rows.Next() {
		var d model.BlockedDomain
		if err := rows.Scan(&d.Domain, &d.Reason, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan blocked domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "sqlite: list blocked domains iterate")
}

func (s *SQLiteStore) GetWorkerStatus(ctx context.Context, workerType model.WorkerType) (*model.WorkerStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT worker_type, hostname, pid, is_running, started_at, last_heartbeat,
		 current_poi_id, current_poi_name, current_phase,
		 pois_processed, discoveries_found, discoveries_reuse,
		 websites_found, websites_not_found, errors, sleep_seconds
		 FROM worker_status WHERE worker_type = ?`,
		string(workerType),
	)

	var ws model.WorkerStatus
	var startedAt, lastHeartbeat sql.NullTime
	err := row.Scan(&ws.Type, &ws.Hostname, &ws.PID, &ws.IsRunning, &startedAt, &lastHeartbeat,
		&ws.CurrentPOIID, &ws.CurrentPOIName, &ws.CurrentPhase,
		&ws.POIsProcessed, &ws.DiscoveriesFound, &ws.DiscoveriesReuse,
		&ws.WebsitesFound, &ws.WebsitesNotFound, &ws.Errors, &ws.SleepSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get worker status")
	}
	if startedAt.Valid {
		ws.StartedAt = &startedAt.Time
	}
	if lastHeartbeat.Valid {
		ws.LastHeartbeat = &lastHeartbeat.Time
	}
	return &ws, nil
}

func (s *SQLiteStore) UpsertWorkerStatus(ctx context.Context, ws *model.WorkerStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO worker_status (worker_type, hostname, pid, is_running, started_at, last_heartbeat,
		 current_poi_id, current_poi_name, current_phase,
		 pois_processed, discoveries_found, discoveries_reuse,
		 websites_found, websites_not_found, errors, sleep_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (worker_type) DO UPDATE SET
		 hostname = excluded.hostname, pid = excluded.pid, is_running = excluded.is_running,
		 started_at = excluded.started_at, last_heartbeat = excluded.last_heartbeat,
		 current_poi_id = excluded.current_poi_id, current_poi_name = excluded.current_poi_name,
		 current_phase = excluded.current_phase,
		 pois_processed = excluded.pois_processed, discoveries_found = excluded.discoveries_found,
		 discoveries_reuse = excluded.discoveries_reuse, websites_found = excluded.websites_found,
		 websites_not_found = excluded.websites_not_found, errors = excluded.errors,
		 sleep_seconds = excluded.sleep_seconds`,
		string(ws.Type), ws.Hostname, ws.PID, ws.IsRunning, nullTime(ws.StartedAt), nullTime(ws.LastHeartbeat),
		ws.CurrentPOIID, ws.CurrentPOIName, ws.CurrentPhase,
		ws.POIsProcessed, ws.DiscoveriesFound, ws.DiscoveriesReuse,
		ws.WebsitesFound, ws.WebsitesNotFound, ws.Errors, ws.SleepSeconds,
	)
	return eris.Wrap(err, "sqlite: upsert worker status")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// claimFilterClauses renders a ClaimFilter as additional AND clauses with ?
// placeholders.
func claimFilterClauses(filter ClaimFilter) (string, []any) {
	var sb strings.Builder
	var args []any

	if len(filter.ExcludeCategories) > 0 {
		sb.WriteString(" AND category NOT IN (" + placeholders(len(filter.ExcludeCategories)) + ")")
		for _, c := range filter.ExcludeCategories {
			args = append(args, c)
		}
	}
	if len(filter.Categories) > 0 {
		sb.WriteString(" AND category IN (" + placeholders(len(filter.Categories)) + ")")
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	if filter.City != "" {
		sb.WriteString(" AND lower(city) = lower(?)")
		args = append(args, filter.City)
	}
	return sb.String(), args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPOI(row scannable) (*model.POI, error) {
	var p model.POI
	var category, websiteStatus, sourceStatus string
	err := row.Scan(&p.ID, &p.OSMType, &p.OSMID, &p.Name, &category, &p.City, &p.State, &p.StreetAddress,
		&p.OSMWebsite, &p.OSMOperator,
		&websiteStatus, &p.DiscoveredWebsite, &p.WebsiteNotes,
		&sourceStatus, &p.EventsURL, &p.EventsURLMethod, &p.EventsConfidence, &p.EventsNotes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Category = model.Category(category)
	p.WebsiteStatus = model.WebsiteStatus(websiteStatus)
	p.SourceStatus = model.SourceStatus(sourceStatus)
	return &p, nil
}
