package model

import "time"

// WorkerType names a worker kind. The status table is keyed on it so future
// worker kinds can coexist.
type WorkerType string

// WorkerURLDiscovery is the single worker kind this system runs today.
const WorkerURLDiscovery WorkerType = "url_discovery"

// heartbeatStale is how long a heartbeat may age before the worker is
// presumed dead.
const heartbeatStale = 60 * time.Second

// WorkerStatus is the persisted liveness and progress record for a worker.
type WorkerStatus struct {
	Type     WorkerType `json:"worker_type"`
	Hostname string     `json:"hostname"`
	PID      int        `json:"pid"`

	IsRunning     bool       `json:"is_running"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	CurrentPOIID   string `json:"current_poi_id,omitempty"`
	CurrentPOIName string `json:"current_poi_name,omitempty"`
	CurrentPhase   string `json:"current_phase,omitempty"`

	POIsProcessed    int `json:"pois_processed"`
	DiscoveriesFound int `json:"discoveries_found"`
	DiscoveriesReuse int `json:"discoveries_reuse"`
	WebsitesFound    int `json:"websites_found"`
	WebsitesNotFound int `json:"websites_not_found"`
	Errors           int `json:"errors"`

	SleepSeconds float64 `json:"sleep_seconds"`
}

// Alive reports whether the worker's heartbeat is recent enough to trust its
// is_running flag.
func (w *WorkerStatus) Alive(now time.Time) bool {
	if !w.IsRunning || w.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*w.LastHeartbeat) < heartbeatStale
}
