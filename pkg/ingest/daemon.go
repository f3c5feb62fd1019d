// Package ingest generates trivia content in the background: a daemon
// cycles through LLM batch fetches, filters duplicates, and inserts the
// survivors into the content store with per-cycle audit rows.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/billdonner/card-engine/pkg/dedup"
	"github.com/billdonner/card-engine/pkg/store"
)

// Daemon states.
const (
	StateStopped = "stopped"
	StateRunning = "running"
	StatePaused  = "paused"
)

const providerName = "openai"

// ContentStore is the slice of the store the daemon writes through.
type ContentStore interface {
	EnsureProvider(ctx context.Context, name, sourceType string) (string, error)
	StartRun(ctx context.Context, providerID string) (string, error)
	FinishRun(ctx context.Context, runID string, fetched, added, skipped int, errMsg string) error
	GetOrCreateDeckByTitle(ctx context.Context, title, kind string, properties map[string]any) (*store.Deck, error)
	CreateCard(ctx context.Context, deckID string, in store.NewCard) (*store.Card, error)
	ListRecentTriviaCards(ctx context.Context, limit int) ([]store.Card, error)
}

// QuestionFetcher produces one cycle's worth of candidates.
type QuestionFetcher interface {
	FetchQuestions(ctx context.Context, batchSize, concurrentBatches int) ([]Candidate, error)
}

// Config carries the daemon's tunables.
type Config struct {
	APIKey            string
	CycleSeconds      int
	BatchSize         int
	ConcurrentBatches int
	AutoStart         bool
}

// SetDefaults fills unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.CycleSeconds <= 0 {
		c.CycleSeconds = 60
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ConcurrentBatches <= 0 {
		c.ConcurrentBatches = 5
	}
}

// ConfigEcho is the config section of the status payload.
type ConfigEcho struct {
	CycleSeconds      int  `json:"cycle_seconds"`
	BatchSize         int  `json:"batch_size"`
	ConcurrentBatches int  `json:"concurrent_batches"`
	AutoStart         bool `json:"auto_start"`
	HasAPIKey         bool `json:"has_api_key"`
}

// ProviderStats are per-provider fetch counters.
type ProviderStats struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
}

// Stats accumulate across cycles for the control surface.
type Stats struct {
	StartTime         *time.Time               `json:"start_time"`
	TotalFetched      int                      `json:"total_fetched"`
	ItemsAdded        int                      `json:"items_added"`
	DuplicatesSkipped int                      `json:"duplicates_skipped"`
	Errors            int                      `json:"errors"`
	CyclesCompleted   int                      `json:"cycles_completed"`
	ProviderStats     map[string]ProviderStats `json:"provider_stats"`
}

// Status is the control-surface view of the daemon.
type Status struct {
	State   string     `json:"state"`
	Stats   Stats      `json:"stats"`
	Config  ConfigEcho `json:"config"`
	Message string     `json:"message,omitempty"`
}

// Daemon runs ingestion cycles on a single background goroutine.
// State and stats are mutex-guarded so the control surface can read
// them while a cycle runs.
type Daemon struct {
	store   ContentStore
	fetcher QuestionFetcher
	filter  *dedup.Filter

	// tick is the pacing granularity; cycles sleep in tick steps so
	// stop and pause are observed promptly.
	tick time.Duration

	mu       sync.Mutex
	config   Config
	state    string
	stats    Stats
	observer CycleObserver
	cancel   context.CancelFunc
	done     chan struct{}
}

// CycleObserver receives per-cycle totals after every ingestion pass,
// including aborted ones.
type CycleObserver interface {
	ObserveCycle(fetched, added, skipped, failures int)
}

// New assembles a daemon. The dedup filter starts cold and warms from
// the store on Start.
func New(contentStore ContentStore, fetcher QuestionFetcher, cfg Config) *Daemon {
	cfg.SetDefaults()
	return &Daemon{
		store:   contentStore,
		fetcher: fetcher,
		filter:  dedup.New(0),
		tick:    time.Second,
		config:  cfg,
		state:   StateStopped,
		stats:   Stats{ProviderStats: map[string]ProviderStats{}},
	}
}

// SetObserver installs a cycle observer. Pass nil to remove it.
func (d *Daemon) SetObserver(o CycleObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = o
}

func (d *Daemon) getObserver() CycleObserver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observer
}

// State returns the current lifecycle state.
func (d *Daemon) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status snapshots state, stats and config for the control surface.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.ProviderStats = make(map[string]ProviderStats, len(d.stats.ProviderStats))
	for name, ps := range d.stats.ProviderStats {
		stats.ProviderStats[name] = ps
	}

	return Status{
		State: d.state,
		Stats: stats,
		Config: ConfigEcho{
			CycleSeconds:      d.config.CycleSeconds,
			BatchSize:         d.config.BatchSize,
			ConcurrentBatches: d.config.ConcurrentBatches,
			AutoStart:         d.config.AutoStart,
			HasAPIKey:         d.config.APIKey != "",
		},
	}
}

// UpdatePacing applies hot-reloaded cycle tunables; they take effect on
// the next cycle.
func (d *Daemon) UpdatePacing(cycleSeconds, batchSize, concurrentBatches int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cycleSeconds > 0 {
		d.config.CycleSeconds = cycleSeconds
	}
	if batchSize > 0 {
		d.config.BatchSize = batchSize
	}
	if concurrentBatches > 0 {
		d.config.ConcurrentBatches = concurrentBatches
	}
}

// Start warms the dedup cache and launches the cycle loop. Returns a
// diagnostic message; invalid transitions are no-ops.
func (d *Daemon) Start() string {
	d.mu.Lock()
	switch d.state {
	case StateRunning:
		d.mu.Unlock()
		return "already running"
	case StatePaused:
		d.mu.Unlock()
		return "already running (paused)"
	}
	if d.config.APIKey == "" {
		d.mu.Unlock()
		return "CE_OPENAI_API_KEY not set"
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.state = StateRunning
	now := time.Now().UTC()
	d.stats.StartTime = &now
	d.mu.Unlock()

	if loaded, err := d.filter.Warm(runCtx, d.store); err != nil {
		slog.Warn("dedup warm-up failed, starting with a cold cache", "error", err)
	} else {
		slog.Info("dedup cache warmed", "cards", loaded)
	}

	go d.runLoop(runCtx, done)
	slog.Info("ingestion daemon started")
	return "started"
}

// Stop cancels the cycle loop and joins it.
func (d *Daemon) Stop() string {
	d.mu.Lock()
	if d.state == StateStopped {
		d.mu.Unlock()
		return "already stopped"
	}
	d.state = StateStopped
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	slog.Info("ingestion daemon stopped")
	return "stopped"
}

// Pause suspends cycling after the current candidate completes.
func (d *Daemon) Pause() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateRunning {
		return fmt.Sprintf("cannot pause from state=%s", d.state)
	}
	d.state = StatePaused
	slog.Info("ingestion daemon paused")
	return "paused"
}

// Resume continues cycling from a pause.
func (d *Daemon) Resume() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StatePaused {
		return fmt.Sprintf("cannot resume from state=%s", d.state)
	}
	d.state = StateRunning
	slog.Info("ingestion daemon resumed")
	return "resumed"
}

func (d *Daemon) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for d.State() == StateRunning {
		d.runCycle(ctx)

		d.mu.Lock()
		d.stats.CyclesCompleted++
		cycleSeconds := d.config.CycleSeconds
		d.mu.Unlock()

		for i := 0; i < cycleSeconds && d.State() == StateRunning; i++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.tick):
			}
		}
		for d.State() == StatePaused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.tick):
			}
		}
	}
}

// runCycle performs one fetch → dedup → insert pass and records an
// audit row. Failures are absorbed into stats; the next cycle is the
// retry.
func (d *Daemon) runCycle(ctx context.Context) {
	var fetched, added, skipped, failures int
	countError := func() {
		failures++
		d.countError()
	}
	defer func() {
		if obs := d.getObserver(); obs != nil {
			obs.ObserveCycle(fetched, added, skipped, failures)
		}
	}()

	providerID, err := d.store.EnsureProvider(ctx, providerName, store.SourceTypeAPI)
	if err != nil {
		slog.Error("cycle aborted: provider lookup failed", "error", err)
		countError()
		return
	}
	runID, err := d.store.StartRun(ctx, providerID)
	if err != nil {
		slog.Error("cycle aborted: run insert failed", "error", err)
		countError()
		return
	}

	var errMsg string

	d.mu.Lock()
	batchSize := d.config.BatchSize
	concurrent := d.config.ConcurrentBatches
	d.mu.Unlock()

	candidates, err := d.fetcher.FetchQuestions(ctx, batchSize, concurrent)
	if err != nil {
		errMsg = err.Error()
		slog.Error("cycle fetch failed", "error", err)
		countError()
	} else {
		fetched = len(candidates)
		d.mu.Lock()
		d.stats.TotalFetched += fetched
		ps := d.stats.ProviderStats[providerName]
		ps.Fetched += fetched
		d.stats.ProviderStats[providerName] = ps
		d.mu.Unlock()
		slog.Info("fetched candidate questions", "count", fetched)

		for _, candidate := range candidates {
			if d.State() != StateRunning {
				break
			}

			correct := candidate.CorrectText()
			if d.filter.IsDuplicate(candidate.Question, correct) {
				skipped++
				d.mu.Lock()
				d.stats.DuplicatesSkipped++
				d.mu.Unlock()
				continue
			}

			card, err := d.insertCard(ctx, candidate)
			if err != nil {
				slog.Error("failed to insert card", "error", err)
				countError()
				continue
			}
			d.filter.Register(candidate.Question, correct, card.ID)
			added++
			d.mu.Lock()
			d.stats.ItemsAdded++
			ps := d.stats.ProviderStats[providerName]
			ps.Added++
			d.stats.ProviderStats[providerName] = ps
			d.mu.Unlock()
		}
	}

	if err := d.store.FinishRun(ctx, runID, fetched, added, skipped, errMsg); err != nil {
		slog.Error("failed to finalise run row", "error", err)
	}
	slog.Info("cycle complete", "fetched", fetched, "added", added, "skipped", skipped)
}

// insertCard maps a candidate onto its category deck and appends it.
func (d *Daemon) insertCard(ctx context.Context, candidate Candidate) (*store.Card, error) {
	deck, err := d.store.GetOrCreateDeckByTitle(ctx, candidate.Category, store.KindTrivia,
		map[string]any{"pic": SymbolFor(candidate.Category)})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return d.store.CreateCard(ctx, deck.ID, store.NewCard{
		Question: candidate.Question,
		Properties: map[string]any{
			"choices":       candidate.Choices,
			"correct_index": candidate.CorrectIndex,
			"explanation":   candidate.Explanation,
			"hint":          candidate.Hint,
			"aisource":      "openai",
		},
		Difficulty: candidate.Difficulty,
		SourceDate: &now,
	})
}

func (d *Daemon) countError() {
	d.mu.Lock()
	d.stats.Errors++
	d.mu.Unlock()
}
