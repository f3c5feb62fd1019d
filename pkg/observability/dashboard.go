package observability

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/billdonner/card-engine/pkg/store"
)

// Metric is one gauge on the monitoring dashboard.
type Metric struct {
	Key              string  `json:"key"`
	Label            string  `json:"label"`
	Value            any     `json:"value"`
	Unit             string  `json:"unit"`
	WarnAbove        float64 `json:"warn_above,omitempty"`
	SparklineHistory []int   `json:"sparkline_history,omitempty"`
}

// DashboardPayload is the GET /metrics response body.
type DashboardPayload struct {
	Metrics     []Metric       `json:"metrics"`
	DecksByKind map[string]int `json:"decks_by_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// StatsSource is the store slice the dashboard reads.
type StatsSource interface {
	GetStats(ctx context.Context) (*store.Stats, error)
	DatabaseSizeBytes(ctx context.Context) (int64, error)
	PoolStats() sql.DBStats
}

const (
	heapWarnBytes = 512 << 20
	connWarnCount = 20
)

// Dashboard assembles process, pool and content gauges for the
// monitoring dashboard.
type Dashboard struct {
	db      StatsSource
	window  *RequestWindow
	started time.Time
	now     func() time.Time
}

// NewDashboard creates a dashboard over the store and the request
// window fed by the HTTP middleware.
func NewDashboard(db StatsSource, window *RequestWindow) *Dashboard {
	return &Dashboard{
		db:      db,
		window:  window,
		started: time.Now(),
		now:     time.Now,
	}
}

// Collect gathers the current gauge values. Database failures are
// returned as-is; the handler renders them into an error payload.
func (d *Dashboard) Collect(ctx context.Context) (*DashboardPayload, error) {
	stats, err := d.db.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	size, err := d.db.DatabaseSizeBytes(ctx)
	if err != nil {
		return nil, err
	}
	pool := d.db.PoolStats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := d.now()
	uptime := int64(now.Sub(d.started).Seconds())
	rate := math.Round(d.window.RateAt(now)*100) / 100

	metrics := []Metric{
		{Key: "uptime_seconds", Label: "Uptime", Value: uptime, Unit: "seconds"},
		{Key: "requests_per_second", Label: "Requests / sec", Value: rate, Unit: "req/s",
			SparklineHistory: d.window.SparklineAt(now)},
		{Key: "heap_bytes", Label: "Heap Memory", Value: mem.HeapAlloc, Unit: "bytes",
			WarnAbove: heapWarnBytes},
		{Key: "db_size_bytes", Label: "Database Size", Value: size, Unit: "bytes"},
		{Key: "db_connections", Label: "DB Connections", Value: pool.OpenConnections, Unit: "count",
			WarnAbove: connWarnCount},
		{Key: "total_decks", Label: "Total Decks", Value: stats.TotalDecks, Unit: "count"},
		{Key: "total_cards", Label: "Total Cards", Value: stats.TotalCards, Unit: "count"},
		{Key: "total_sources", Label: "Source Providers", Value: stats.TotalSources, Unit: "count"},
	}

	return &DashboardPayload{Metrics: metrics, DecksByKind: stats.DecksByKind}, nil
}

// ErrorPayload is the body served when collection fails.
func ErrorPayload(err error) *DashboardPayload {
	return &DashboardPayload{
		Metrics: []Metric{},
		Error:   fmt.Sprintf("Database error: %v", err),
	}
}
