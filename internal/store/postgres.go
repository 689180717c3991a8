package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/superschedules/navigator/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pois (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	osm_type           TEXT NOT NULL,
	osm_id             BIGINT NOT NULL,
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
	events_confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	events_notes       TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (osm_type, osm_id)
);

CREATE TABLE IF NOT EXISTS blocked_domains (
	domain     TEXT PRIMARY KEY,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS worker_status (
	worker_type        TEXT PRIMARY KEY,
	hostname           TEXT NOT NULL DEFAULT '',
	pid                INTEGER NOT NULL DEFAULT 0,
	is_running         BOOLEAN NOT NULL DEFAULT false,
	started_at         TIMESTAMPTZ,
	last_heartbeat     TIMESTAMPTZ,
	current_poi_id     TEXT NOT NULL DEFAULT '',
	current_poi_name   TEXT NOT NULL DEFAULT '',
	current_phase      TEXT NOT NULL DEFAULT '',
	pois_processed     INTEGER NOT NULL DEFAULT 0,
	discoveries_found  INTEGER NOT NULL DEFAULT 0,
	discoveries_reuse  INTEGER NOT NULL DEFAULT 0,
	websites_found     INTEGER NOT NULL DEFAULT 0,
	websites_not_found INTEGER NOT NULL DEFAULT 0,
	errors             INTEGER NOT NULL DEFAULT 0,
	sleep_seconds      DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pois_website_status ON pois(website_status);
CREATE INDEX IF NOT EXISTS idx_pois_source_status ON pois(source_status);
CREATE INDEX IF NOT EXISTS idx_pois_city_category ON pois(city, category);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreatePOI(ctx context.Context, poi *model.POI) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pois (`+poiColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		poi.ID, poi.OSMType, poi.OSMID, poi.Name, string(poi.Category), poi.City, poi.State, poi.StreetAddress,
		poi.OSMWebsite, poi.OSMOperator,
		string(poi.WebsiteStatus), poi.DiscoveredWebsite, poi.WebsiteNotes,
		string(poi.SourceStatus), poi.EventsURL, poi.EventsURLMethod, poi.EventsConfidence, poi.EventsNotes,
		poi.CreatedAt, poi.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert poi %s", poi.Name)
}

func (s *PostgresStore) GetPOI(ctx context.Context, id string) (*model.POI, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poiColumns+` FROM pois WHERE id = $1`, id,
	)
	poi, err := scanPOI(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("poi not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get poi")
	}
	return poi, nil
}

// ClaimNext uses a single UPDATE with a subselect under FOR UPDATE SKIP
// LOCKED, so concurrent workers never claim the same row.
func (s *PostgresStore) ClaimNext(ctx context.Context, filter ClaimFilter) (*model.POI, model.Track, error) {
	where, args := pgClaimFilterClauses(filter, 2)

	row := s.pool.QueryRow(ctx,
		`UPDATE pois SET website_status = 'processing', updated_at = now()
		 WHERE id = (
			SELECT id FROM pois
			WHERE website_status = $1 AND osm_website = '' AND city <> ''`+where+`
			ORDER BY category, city, name LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+poiColumns,
		append([]any{string(model.WebsiteNotStarted)}, args...)...)
	poi, err := scanPOI(row)
	if err == nil {
		return poi, model.TrackWebsite, nil
	}
	if err != pgx.ErrNoRows {
		return nil, "", eris.Wrap(err, "postgres: claim website candidate")
	}

	wl, wlArgs := pgWebsitelessClause(2)
	where, args = pgClaimFilterClauses(filter, 2+len(wlArgs))
	eventsArgs := append([]any{string(model.SourceNotStarted)}, wlArgs...)
	eventsArgs = append(eventsArgs, args...)

	row = s.pool.QueryRow(ctx,
		`UPDATE pois SET source_status = 'processing', updated_at = now()
		 WHERE id = (
			SELECT id FROM pois
			WHERE source_status = $1 AND city <> ''
			AND (osm_website <> '' OR discovered_website <> '' OR `+wl+`)`+where+`
			ORDER BY category, city, name LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+poiColumns,
		eventsArgs...)
	poi, err = scanPOI(row)
	if err == pgx.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", eris.Wrap(err, "postgres: claim events candidate")
	}
	return poi, model.TrackEvents, nil
}

func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string, track model.Track) error {
	var tag pgconn.CommandTag
	var err error
	switch track {
	case model.TrackWebsite:
		tag, err = s.pool.Exec(ctx,
			`UPDATE pois SET website_status = $1, updated_at = now() WHERE id = $2 AND website_status = $3`,
			string(model.WebsiteNotStarted), id, string(model.WebsiteProcessing),
		)
	case model.TrackEvents:
		tag, err = s.pool.Exec(ctx,
			`UPDATE pois SET source_status = $1, updated_at = now() WHERE id = $2 AND source_status = $3`,
			string(model.SourceNotStarted), id, string(model.SourceProcessing),
		)
	default:
		return eris.Errorf("unknown track: %s", track)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: release claim %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("claimed poi not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateWebsiteResult(ctx context.Context, id string, status model.WebsiteStatus, website, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pois SET website_status = $1, discovered_website = $2, website_notes = $3, updated_at = now()
		 WHERE id = $4`,
		string(status), website, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update website result %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("poi not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateEventsResult(ctx context.Context, id string, status model.SourceStatus, eventsURL, method string, confidence float64, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pois SET source_status = $1, events_url = $2, events_url_method = $3, events_confidence = $4, events_notes = $5, updated_at = now()
		 WHERE id = $6`,
		string(status), eventsURL, method, confidence, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update events result %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("poi not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FindReusableWebsite(ctx context.Context, poi *model.POI) (string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT CASE WHEN osm_website <> '' THEN osm_website ELSE discovered_website END
		 FROM pois
		 WHERE id <> $1
		 AND lower(city) = lower($2)
		 AND category = $3
		 AND (osm_website <> '' OR discovered_website <> '')
		 AND ((osm_operator = '' AND $4 = '') OR lower(osm_operator) = lower($4))
		 ORDER BY updated_at DESC LIMIT 1`,
		poi.ID, poi.City, string(poi.Category), poi.OSMOperator,
	)
	var website string
	err := row.Scan(&website)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find reusable website")
	}
	return website, nil
}

func (s *PostgresStore) FindReusableEventsURL(ctx context.Context, poi *model.POI) (string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT events_url FROM pois
		 WHERE id <> $1
		 AND lower(city) = lower($2)
		 AND category = $3
		 AND source_status = $4
		 AND events_url <> ''
		 AND ((osm_operator = '' AND $5 = '') OR lower(osm_operator) = lower($5))
		 ORDER BY updated_at DESC LIMIT 1`,
		poi.ID, poi.City, string(poi.Category), string(model.SourceDiscovered), poi.OSMOperator,
	)
	var eventsURL string
	err := row.Scan(&eventsURL)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find reusable events url")
	}
	return eventsURL, nil
}

func (s *PostgresStore) ResetProcessing(ctx context.Context) (int, error) {
	total := 0

	tag, err := s.pool.Exec(ctx,
		`UPDATE pois SET website_status = $1, updated_at = now() WHERE website_status = $2`,
		string(model.WebsiteNotStarted), string(model.WebsiteProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset website processing")
	}
	total += int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx,
		`UPDATE pois SET source_status = $1, updated_at = now() WHERE source_status = $2`,
		string(model.SourceNotStarted), string(model.SourceProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset source processing")
	}
	return total + int(tag.RowsAffected()), nil
}

func (s *PostgresStore) StatusCounts(ctx context.Context, category, city string) (*Counts, error) {
	query := `SELECT website_status, source_status FROM pois WHERE 1=1`
	var args []any
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if city != "" {
		args = append(args, city)
		query += fmt.Sprintf(` AND lower(city) = lower($%d)`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	counts := &Counts{
		Website: map[model.WebsiteStatus]int{},
		Source:  map[model.SourceStatus]int{},
	}
	for rows.Next() {
		var ws, ss string
		if err := rows.Scan(&ws, &ss); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status counts")
		}
		counts.Total++
		counts.Website[model.WebsiteStatus(ws)]++
		counts.Source[model.SourceStatus(ss)]++
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status counts iterate")
}

func (s *PostgresStore) AddBlockedDomain(ctx context.Context, domain, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO blocked_domains (domain, reason, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (domain) DO NOTHING`,
		model.NormalizeDomain(domain), reason,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: add blocked domain %s", domain)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, reason, created_at FROM blocked_domains ORDER BY domain`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list blocked domains")
	}
	defer rows.Close()

	var domains []model.BlockedDomain
	for rows.Next() {
		var d model.BlockedDomain
		if err := rows.Scan(&d.Domain, &d.Reason, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan blocked domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "postgres: list blocked domains iterate")
}

func (s *PostgresStore) GetWorkerStatus(ctx context.Context, workerType model.WorkerType) (*model.WorkerStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT worker_type, hostname, pid, is_running, started_at, last_heartbeat,
		 current_poi_id, current_poi_name, current_phase,
		 pois_processed, discoveries_found, discoveries_reuse,
		 websites_found, websites_not_found, errors, sleep_seconds
		 FROM worker_status WHERE worker_type = $1`,
		string(workerType),
	)

	var ws model.WorkerStatus
	err := row.Scan(&ws.Type, &ws.Hostname, &ws.PID, &ws.IsRunning, &ws.StartedAt, &ws.LastHeartbeat,
		&ws.CurrentPOIID, &ws.CurrentPOIName, &ws.CurrentPhase,
		&ws.POIsProcessed, &ws.DiscoveriesFound, &ws.DiscoveriesReuse,
		&ws.WebsitesFound, &ws.WebsitesNotFound, &ws.Errors, &ws.SleepSeconds)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get worker status")
	}
	return &ws, nil
}

func (s *PostgresStore) UpsertWorkerStatus(ctx context.Context, ws *model.WorkerStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO worker_status (worker_type, hostname, pid, is_running, started_at, last_heartbeat,
		 current_poi_id, current_poi_name, current_phase,
		 pois_processed, discoveries_found, discoveries_reuse,
		 websites_found, websites_not_found, errors, sleep_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (worker_type) DO UPDATE SET
		 hostname = excluded.hostname, pid = excluded.pid, is_running = excluded.is_running,
		 started_at = excluded.started_at, last_heartbeat = excluded.last_heartbeat,
		 current_poi_id = excluded.current_poi_id, current_poi_name = excluded.current_poi_name,
		 current_phase = excluded.current_phase,
		 pois_processed = excluded.pois_processed, discoveries_found = excluded.discoveries_found,
		 discoveries_reuse = excluded.discoveries_reuse, websites_found = excluded.websites_found,
		 websites_not_found = excluded.websites_not_found, errors = excluded.errors,
		 sleep_seconds = excluded.sleep_seconds`,
		string(ws.Type), ws.Hostname, ws.PID, ws.IsRunning, ws.StartedAt, ws.LastHeartbeat,
		ws.CurrentPOIID, ws.CurrentPOIName, ws.CurrentPhase,
		ws.POIsProcessed, ws.DiscoveriesFound, ws.DiscoveriesReuse,
		ws.WebsitesFound, ws.WebsitesNotFound, ws.Errors, ws.SleepSeconds,
	)
	return eris.Wrap(err, "postgres: upsert worker status")
}

// pgWebsitelessClause renders the websiteless-eligible category match with
// numbered placeholders starting at start.
func pgWebsitelessClause(start int) (string, []any) {
	cats := model.WebsitelessCategories()
	parts := make([]string, len(cats))
	args := make([]any, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("$%d", start+i)
		args[i] = string(c)
	}
	return "category IN (" + strings.Join(parts, ", ") + ")", args
}

// pgClaimFilterClauses renders a ClaimFilter with numbered placeholders
// starting at start.
func pgClaimFilterClauses(filter ClaimFilter, start int) (string, []any) {
	var sb strings.Builder
	var args []any
	next := func() string {
		n := start + len(args)
		return fmt.Sprintf("$%d", n)
	}

	writeIn := func(not bool, values []string) {
		if not {
			sb.WriteString(" AND category NOT IN (")
		} else {
			sb.WriteString(" AND category IN (")
		}
		for i, v := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(next())
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	if len(filter.ExcludeCategories) > 0 {
		writeIn(true, filter.ExcludeCategories)
	}
	if len(filter.Categories) > 0 {
		writeIn(false, filter.Categories)
	}
	if filter.City != "" {
		sb.WriteString(" AND lower(city) = lower(" + next() + ")")
		args = append(args, filter.City)
	}
	return sb.String(), args
}
