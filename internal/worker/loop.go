// Package worker runs the resolution loop: claim a POI, resolve one track,
// persist the outcome, repeat. Pacing adapts to rate-limit pressure and a
// heartbeat keeps the worker's status row fresh for operators.
package worker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/config"
	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/resolve"
	"github.com/superschedules/navigator/internal/store"
)

// Resolver is the engine surface the worker drives.
type Resolver interface {
	ResolveWebsite(ctx context.Context, poi *model.POI) resolve.WebsiteResult
	ResolveEvents(ctx context.Context, poi *model.POI) resolve.EventsResult
}

// Worker claims POIs and resolves them one at a time.
type Worker struct {
	store  store.Store
	engine Resolver
	cfg    config.WorkerConfig
	filter store.ClaimFilter

	// DryRun resolves POIs without persisting results. Claims are held for
	// the duration of the batch so the queue still advances, then released.
	DryRun bool

	mu     sync.Mutex
	status model.WorkerStatus
	sleep  float64
	errRun int
	held   []heldClaim
}

type heldClaim struct {
	id    string
	track model.Track
}

// New builds a worker. filter narrows which POIs it will claim.
func New(st store.Store, engine Resolver, cfg config.WorkerConfig, filter store.ClaimFilter) *Worker {
	hostname, _ := os.Hostname()
	w := &Worker{
		store:  st,
		engine: engine,
		cfg:    cfg,
		filter: filter,
		sleep:  cfg.SleepStartSecs,
	}
	if w.sleep < cfg.SleepMinSecs {
		w.sleep = cfg.SleepMinSecs
	}
	w.status = model.WorkerStatus{
		Type:     model.WorkerURLDiscovery,
		Hostname: hostname,
		PID:      os.Getpid(),
	}
	return w
}

// Run processes POIs until ctx is canceled. Interrupted claims from a prior
// crash are released before any new work starts.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.recoverStuck(ctx); err != nil {
		return err
	}
	w.markStarted(ctx)
	defer w.markStopped()
	defer func() {
		if !w.DryRun {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		w.releaseHeld(releaseCtx)
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeatLoop(heartbeatCtx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		worked, err := w.ProcessOne(ctx)
		switch {
		case err != nil:
			w.noteError(err)
			if w.errorRun() >= w.cfg.MaxConsecutiveErrs {
				zap.L().Error("too many consecutive errors, pausing",
					zap.Int("errors", w.errorRun()),
					zap.Int("pause_secs", w.cfg.ErrorPauseSecs))
				w.resetErrorRun()
				if !wait(ctx, time.Duration(w.cfg.ErrorPauseSecs)*time.Second) {
					return nil
				}
			}
		case !worked:
			if !wait(ctx, time.Duration(w.cfg.IdleWaitSecs)*time.Second) {
				return nil
			}
		default:
			w.resetErrorRun()
			if !wait(ctx, w.sleepInterval()) {
				return nil
			}
		}
	}
}

// RunBatch processes up to n POIs and stops early when the queue drains.
// It returns how many POIs were processed.
func (w *Worker) RunBatch(ctx context.Context, n int) (int, error) {
	if err := w.recoverStuck(ctx); err != nil {
		return 0, err
	}
	w.markStarted(ctx)
	defer w.markStopped()

	processed := 0
	for processed < n {
		if ctx.Err() != nil {
			return processed, nil
		}
		worked, err := w.ProcessOne(ctx)
		if err != nil {
			w.noteError(err)
			if w.errorRun() >= w.cfg.MaxConsecutiveErrs {
				return processed, eris.Wrap(err, "worker: aborting batch after repeated errors")
			}
			continue
		}
		if !worked {
			break
		}
		w.resetErrorRun()
		processed++
		if processed < n && !wait(ctx, w.sleepInterval()) {
			break
		}
	}
	if w.DryRun {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		w.releaseHeld(releaseCtx)
	}
	w.heartbeat(ctx)
	return processed, nil
}

// ProcessOne claims and resolves a single POI. It reports false when nothing
// was eligible. A claim that cannot be persisted is released so another run
// can pick it up.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	poi, track, err := w.store.ClaimNext(ctx, w.filter)
	if err != nil {
		return false, eris.Wrap(err, "worker: claim")
	}
	if poi == nil {
		w.setCurrent("", "", "")
		return false, nil
	}

	persisted := false
	defer func() {
		if persisted {
			return
		}
		// Persist failed or we are unwinding: put the claim back so the POI
		// is not stranded in processing.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := w.store.ReleaseClaim(releaseCtx, poi.ID, track); relErr != nil {
			zap.L().Warn("failed to release claim", zap.String("poi_id", poi.ID), zap.Error(relErr))
		}
	}()

	w.setCurrent(poi.ID, poi.Name, string(track))

	switch track {
	case model.TrackWebsite:
		res := w.engine.ResolveWebsite(ctx, poi)
		if w.DryRun {
			persisted = w.hold(poi.ID, track)
			zap.L().Info("dry run: website result",
				zap.String("poi_id", poi.ID),
				zap.String("name", poi.Name),
				zap.String("status", string(res.Status)),
				zap.String("website", res.Website),
				zap.String("notes", res.Notes))
		} else {
			if err := w.store.UpdateWebsiteResult(ctx, poi.ID, res.Status, res.Website, res.Notes); err != nil {
				return true, eris.Wrap(err, "worker: persist website result")
			}
			persisted = true
		}
		w.recordWebsite(res)
	case model.TrackEvents:
		res := w.engine.ResolveEvents(ctx, poi)
		if w.DryRun {
			persisted = w.hold(poi.ID, track)
			zap.L().Info("dry run: events result",
				zap.String("poi_id", poi.ID),
				zap.String("name", poi.Name),
				zap.String("status", string(res.Status)),
				zap.String("events_url", res.EventsURL),
				zap.String("method", res.Method))
		} else {
			if err := w.store.UpdateEventsResult(ctx, poi.ID, res.Status, res.EventsURL, res.Method, res.Confidence, res.Notes); err != nil {
				return true, eris.Wrap(err, "worker: persist events result")
			}
			persisted = true
		}
		w.recordEvents(res)
	default:
		return true, eris.Errorf("worker: unknown track %q", track)
	}

	w.mu.Lock()
	w.status.POIsProcessed++
	w.mu.Unlock()
	return true, nil
}

// hold retains a dry-run claim until the batch ends. Always returns true so
// the deferred per-claim release is skipped.
func (w *Worker) hold(id string, track model.Track) bool {
	w.mu.Lock()
	w.held = append(w.held, heldClaim{id: id, track: track})
	w.mu.Unlock()
	return true
}

// releaseHeld returns all dry-run claims to not_started.
func (w *Worker) releaseHeld(ctx context.Context) {
	w.mu.Lock()
	held := w.held
	w.held = nil
	w.mu.Unlock()

	for _, h := range held {
		if err := w.store.ReleaseClaim(ctx, h.id, h.track); err != nil {
			zap.L().Warn("failed to release dry-run claim", zap.String("poi_id", h.id), zap.Error(err))
		}
	}
}

// recoverStuck releases claims left behind by a crashed run.
func (w *Worker) recoverStuck(ctx context.Context) error {
	n, err := w.store.ResetProcessing(ctx)
	if err != nil {
		return eris.Wrap(err, "worker: reset stuck claims")
	}
	if n > 0 {
		zap.L().Info("released stuck claims from previous run", zap.Int("count", n))
	}
	return nil
}

func (w *Worker) recordWebsite(res resolve.WebsiteResult) {
	w.mu.Lock()
	switch res.Status {
	case model.WebsiteFound:
		w.status.WebsitesFound++
	case model.WebsiteNotFound:
		w.status.WebsitesNotFound++
	}
	w.mu.Unlock()

	if res.RateLimited {
		w.backOff()
	} else {
		w.speedUp()
	}
}

func (w *Worker) recordEvents(res resolve.EventsResult) {
	w.mu.Lock()
	if res.Status == model.SourceDiscovered {
		w.status.DiscoveriesFound++
		if res.Method == resolve.MethodSharedCalendar {
			w.status.DiscoveriesReuse++
		}
	}
	w.mu.Unlock()
	w.speedUp()
}

// speedUp shortens the inter-item sleep additively down to the floor.
func (w *Worker) speedUp() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sleep -= w.cfg.SleepAdditiveDec
	if w.sleep < w.cfg.SleepMinSecs {
		w.sleep = w.cfg.SleepMinSecs
	}
	w.status.SleepSeconds = w.sleep
}

// backOff doubles the inter-item sleep up to the ceiling.
func (w *Worker) backOff() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sleep *= w.cfg.SleepMultInc
	if w.sleep > w.cfg.SleepMaxSecs {
		w.sleep = w.cfg.SleepMaxSecs
	}
	w.status.SleepSeconds = w.sleep
	zap.L().Info("rate limited, backing off", zap.Float64("sleep_secs", w.sleep))
}

func (w *Worker) sleepInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.sleep * float64(time.Second))
}

func (w *Worker) noteError(err error) {
	zap.L().Error("processing failed", zap.Error(err))
	w.mu.Lock()
	w.status.Errors++
	w.errRun++
	w.mu.Unlock()
}

func (w *Worker) errorRun() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errRun
}

func (w *Worker) resetErrorRun() {
	w.mu.Lock()
	w.errRun = 0
	w.mu.Unlock()
}

func (w *Worker) setCurrent(id, name, phase string) {
	w.mu.Lock()
	w.status.CurrentPOIID = id
	w.status.CurrentPOIName = name
	w.status.CurrentPhase = phase
	w.mu.Unlock()
}

func (w *Worker) markStarted(ctx context.Context) {
	now := time.Now().UTC()
	w.mu.Lock()
	w.status.IsRunning = true
	w.status.StartedAt = &now
	w.mu.Unlock()
	w.heartbeat(ctx)
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	w.status.IsRunning = false
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.heartbeat(ctx)
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Heartbeat())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.heartbeat(ctx)
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context) {
	now := time.Now().UTC()
	w.mu.Lock()
	w.status.LastHeartbeat = &now
	snapshot := w.status
	w.mu.Unlock()

	if err := w.store.UpsertWorkerStatus(ctx, &snapshot); err != nil {
		zap.L().Warn("heartbeat upsert failed", zap.Error(err))
	}
}

// Status returns a snapshot of the worker's counters.
func (w *Worker) Status() model.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// wait sleeps for d unless ctx is canceled first. It reports whether the
// full wait elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
