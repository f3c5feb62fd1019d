package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billdonner/card-engine/pkg/store"
)

type fakeRun struct {
	id       string
	finished bool
	fetched  int
	added    int
	skipped  int
	errMsg   string
}

// fakeStore is an in-memory ContentStore for daemon tests.
type fakeStore struct {
	mu     sync.Mutex
	decks  map[string]*store.Deck
	cards  []store.Card
	runs   []fakeRun
	recent []store.Card
}

func newFakeStore() *fakeStore {
	return &fakeStore{decks: map[string]*store.Deck{}}
}

func (f *fakeStore) EnsureProvider(_ context.Context, name, _ string) (string, error) {
	return "provider-" + name, nil
}

func (f *fakeStore) StartRun(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("run-%d", len(f.runs)+1)
	f.runs = append(f.runs, fakeRun{id: id})
	return id, nil
}

func (f *fakeStore) FinishRun(_ context.Context, runID string, fetched, added, skipped int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].id == runID {
			f.runs[i].finished = true
			f.runs[i].fetched = fetched
			f.runs[i].added = added
			f.runs[i].skipped = skipped
			f.runs[i].errMsg = errMsg
		}
	}
	return nil
}

func (f *fakeStore) GetOrCreateDeckByTitle(_ context.Context, title, kind string, properties map[string]any) (*store.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(title)
	if deck, ok := f.decks[key]; ok {
		return deck, nil
	}
	deck := &store.Deck{
		ID:         fmt.Sprintf("deck-%d", len(f.decks)+1),
		Title:      title,
		Kind:       kind,
		Tier:       store.TierFree,
		Properties: properties,
	}
	f.decks[key] = deck
	return deck, nil
}

func (f *fakeStore) CreateCard(_ context.Context, deckID string, in store.NewCard) (*store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card := store.Card{
		ID:         fmt.Sprintf("card-%d", len(f.cards)+1),
		DeckID:     deckID,
		Position:   len(f.cards),
		Question:   in.Question,
		Properties: in.Properties,
		Difficulty: in.Difficulty,
	}
	f.cards = append(f.cards, card)
	return &card, nil
}

func (f *fakeStore) ListRecentTriviaCards(_ context.Context, limit int) ([]store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	return append([]store.Card(nil), f.recent[:limit]...), nil
}

func (f *fakeStore) cardCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}

func (f *fakeStore) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeStore) runSnapshot() []fakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeRun(nil), f.runs...)
}

func (f *fakeStore) cardSnapshot() []store.Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Card(nil), f.cards...)
}

func (f *fakeStore) deckByTitle(title string) *store.Deck {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decks[strings.ToLower(title)]
}

// queueFetcher hands out pre-built batches, then empty ones.
type queueFetcher struct {
	mu      sync.Mutex
	batches [][]Candidate
	calls   int
}

func (q *queueFetcher) FetchQuestions(_ context.Context, _, _ int) ([]Candidate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

type failingFetcher struct{}

func (failingFetcher) FetchQuestions(_ context.Context, _, _ int) ([]Candidate, error) {
	return nil, errors.New("rate limited")
}

func makeCandidate(question, answer string) Candidate {
	return Candidate{
		Question:   question,
		Category:   "History",
		Difficulty: "medium",
		Choices: []store.Choice{
			{Text: answer, IsCorrect: true},
			{Text: "wrong one"},
			{Text: "wrong two"},
			{Text: "wrong three"},
		},
		CorrectIndex: 0,
		Explanation:  "because",
		Hint:         "a hint",
	}
}

// Six candidates with disjoint wording so similarity never trips.
func distinctCandidates() []Candidate {
	return []Candidate{
		makeCandidate("Which ocean borders the western coast of continental Chile?", "Pacific"),
		makeCandidate("What metal gives human blood its characteristic red color?", "Iron"),
		makeCandidate("Who painted the ceiling of the Sistine Chapel in Rome?", "Michelangelo"),
		makeCandidate("Which planet takes roughly twelve years to orbit the sun?", "Jupiter"),
		makeCandidate("What language has the most native speakers worldwide today?", "Mandarin"),
		makeCandidate("Which mountain range separates European Spain from neighboring France?", "Pyrenees"),
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, 60, cfg.CycleSeconds)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5, cfg.ConcurrentBatches)
}

func TestUpdatePacing(t *testing.T) {
	d := New(newFakeStore(), &queueFetcher{}, Config{})
	d.UpdatePacing(120, 25, 8)
	echo := d.Status().Config
	assert.Equal(t, 120, echo.CycleSeconds)
	assert.Equal(t, 25, echo.BatchSize)
	assert.Equal(t, 8, echo.ConcurrentBatches)

	// Non-positive values are ignored.
	d.UpdatePacing(0, -1, 0)
	echo = d.Status().Config
	assert.Equal(t, 120, echo.CycleSeconds)
	assert.Equal(t, 25, echo.BatchSize)
	assert.Equal(t, 8, echo.ConcurrentBatches)
}

func TestCycleHappyPath(t *testing.T) {
	fs := newFakeStore()
	qf := &queueFetcher{batches: [][]Candidate{distinctCandidates()}}
	d := New(fs, qf, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.Status().Stats.CyclesCompleted >= 1
	}, 2*time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, StateRunning, status.State)
	require.NotNil(t, status.Stats.StartTime)
	assert.Equal(t, 6, status.Stats.TotalFetched)
	assert.Equal(t, 6, status.Stats.ItemsAdded)
	assert.Equal(t, 0, status.Stats.DuplicatesSkipped)
	assert.Equal(t, 0, status.Stats.Errors)
	assert.Equal(t, ProviderStats{Fetched: 6, Added: 6}, status.Stats.ProviderStats["openai"])
	assert.True(t, status.Config.HasAPIKey)

	assert.Equal(t, 6, fs.cardCount())
	runs := fs.runSnapshot()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].finished)
	assert.Equal(t, 6, runs[0].fetched)
	assert.Equal(t, 6, runs[0].added)
	assert.Equal(t, 0, runs[0].skipped)
	assert.Empty(t, runs[0].errMsg)

	deck := fs.deckByTitle("History")
	require.NotNil(t, deck)
	assert.Equal(t, store.KindTrivia, deck.Kind)
	assert.Equal(t, SymbolFor("History"), deck.Properties["pic"])

	card := fs.cardSnapshot()[0]
	assert.Equal(t, deck.ID, card.DeckID)
	assert.Equal(t, "medium", card.Difficulty)
	assert.Equal(t, "openai", card.Properties["aisource"])
	assert.Equal(t, 0, card.Properties["correct_index"])
}

func TestDedupWithinCycle(t *testing.T) {
	repeat := makeCandidate("Which ocean borders the western coast of continental Chile?", "Pacific")
	fs := newFakeStore()
	qf := &queueFetcher{batches: [][]Candidate{{repeat, repeat}}}
	d := New(fs, qf, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.Status().Stats.CyclesCompleted >= 1
	}, 2*time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, 2, status.Stats.TotalFetched)
	assert.Equal(t, 1, status.Stats.ItemsAdded)
	assert.Equal(t, 1, status.Stats.DuplicatesSkipped)
	assert.Equal(t, 1, fs.cardCount())

	runs := fs.runSnapshot()
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].fetched)
	assert.Equal(t, 1, runs[0].added)
	assert.Equal(t, 1, runs[0].skipped)
}

func TestWarmStartSkipsExisting(t *testing.T) {
	fs := newFakeStore()
	fs.recent = []store.Card{{
		ID:       "card-existing",
		Question: "Which ocean borders the western coast of continental Chile?",
		Properties: map[string]any{
			"choices": []any{
				map[string]any{"text": "Pacific", "isCorrect": true},
				map[string]any{"text": "Atlantic"},
			},
			"correct_index": float64(0),
		},
	}}
	qf := &queueFetcher{batches: [][]Candidate{{
		makeCandidate("Which ocean borders the western coast of continental Chile?", "Pacific"),
		makeCandidate("What metal gives human blood its characteristic red color?", "Iron"),
	}}}
	d := New(fs, qf, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.Status().Stats.CyclesCompleted >= 1
	}, 2*time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, 1, status.Stats.ItemsAdded)
	assert.Equal(t, 1, status.Stats.DuplicatesSkipped)
	assert.Equal(t, 1, fs.cardCount())
}

func TestFetchFailureRecordedOnRun(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, failingFetcher{}, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.Status().Stats.CyclesCompleted >= 1
	}, 2*time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, 1, status.Stats.Errors)
	assert.Equal(t, 0, status.Stats.TotalFetched)

	runs := fs.runSnapshot()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].finished)
	assert.Equal(t, "rate limited", runs[0].errMsg)
	assert.Zero(t, runs[0].fetched)
}

func TestPauseResume(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, &queueFetcher{}, Config{APIKey: "test-key", CycleSeconds: 1})
	d.tick = 5 * time.Millisecond

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool { return fs.runCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "paused", d.Pause())
	// Let any in-flight cycle drain before sampling.
	time.Sleep(50 * time.Millisecond)
	before := fs.runCount()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, fs.runCount())

	require.Equal(t, "resumed", d.Resume())
	require.Eventually(t, func() bool { return fs.runCount() > before }, 2*time.Second, 5*time.Millisecond)
}

func TestTransitionMessages(t *testing.T) {
	fs := newFakeStore()

	noKey := New(fs, &queueFetcher{}, Config{CycleSeconds: 3600})
	assert.Equal(t, "CE_OPENAI_API_KEY not set", noKey.Start())
	assert.Equal(t, StateStopped, noKey.State())
	assert.Equal(t, "already stopped", noKey.Stop())
	assert.Equal(t, "cannot pause from state=stopped", noKey.Pause())
	assert.Equal(t, "cannot resume from state=stopped", noKey.Resume())

	d := New(fs, &queueFetcher{}, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond
	assert.Equal(t, "started", d.Start())
	assert.Equal(t, "already running", d.Start())
	assert.Equal(t, "cannot resume from state=running", d.Resume())
	assert.Equal(t, "paused", d.Pause())
	assert.Equal(t, "already running (paused)", d.Start())
	assert.Equal(t, "cannot pause from state=paused", d.Pause())
	assert.Equal(t, "resumed", d.Resume())
	assert.Equal(t, "stopped", d.Stop())
	assert.Equal(t, StateStopped, d.State())
}

type recordingObserver struct {
	mu       sync.Mutex
	cycles   int
	fetched  int
	added    int
	skipped  int
	failures int
}

func (r *recordingObserver) ObserveCycle(fetched, added, skipped, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
	r.fetched += fetched
	r.added += added
	r.skipped += skipped
	r.failures += failures
}

func (r *recordingObserver) snapshot() (cycles, fetched, added, skipped, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles, r.fetched, r.added, r.skipped, r.failures
}

func TestCycleObserverNotified(t *testing.T) {
	fs := newFakeStore()
	qf := &queueFetcher{batches: [][]Candidate{distinctCandidates()}}
	d := New(fs, qf, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond
	obs := &recordingObserver{}
	d.SetObserver(obs)

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		cycles, _, _, _, _ := obs.snapshot()
		return cycles >= 1
	}, 2*time.Second, 5*time.Millisecond)

	_, fetched, added, skipped, failures := obs.snapshot()
	assert.Equal(t, 6, fetched)
	assert.Equal(t, 6, added)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 0, failures)
}

func TestCycleObserverSeesFailures(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, failingFetcher{}, Config{APIKey: "test-key", CycleSeconds: 3600})
	d.tick = 5 * time.Millisecond
	obs := &recordingObserver{}
	d.SetObserver(obs)

	require.Equal(t, "started", d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool {
		cycles, _, _, _, _ := obs.snapshot()
		return cycles >= 1
	}, 2*time.Second, 5*time.Millisecond)

	_, fetched, _, _, failures := obs.snapshot()
	assert.Zero(t, fetched)
	assert.GreaterOrEqual(t, failures, 1)
}
