package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billdonner/card-engine/pkg/ingest"
	"github.com/billdonner/card-engine/pkg/observability"
	"github.com/billdonner/card-engine/pkg/store"
)

// fakeServerStore is an in-memory Store for handler tests. Slices keep
// insertion order so list endpoints stay deterministic.
type fakeServerStore struct {
	mu       sync.Mutex
	nextID   int
	decks    []*store.Deck
	cards    []*store.Card
	families []*store.Family
	people   []*store.Person
	rels     []*store.Relationship
	sessions []*store.ChatSession
	reports  []store.QuestionReport
	runs     []store.SourceRun
	hits     []store.SearchResult

	pingErr  error
	statsErr error
}

var _ Store = (*fakeServerStore)(nil)

func newFakeServerStore() *fakeServerStore { return &fakeServerStore{} }

// id must be called with mu held.
func (f *fakeServerStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeServerStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeServerStore) GetStats(context.Context) (*store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	byKind := map[string]int{}
	for _, d := range f.decks {
		byKind[d.Kind]++
	}
	return &store.Stats{
		TotalDecks:   len(f.decks),
		TotalCards:   len(f.cards),
		TotalSources: len(f.runs),
		DecksByKind:  byKind,
	}, nil
}

func (f *fakeServerStore) DatabaseSizeBytes(context.Context) (int64, error) {
	if f.statsErr != nil {
		return 0, f.statsErr
	}
	return 4096, nil
}

func (f *fakeServerStore) PoolStats() sql.DBStats {
	return sql.DBStats{OpenConnections: 1}
}

// deckByID and deckCards must be called with mu held.
func (f *fakeServerStore) deckByID(id string) *store.Deck {
	for _, d := range f.decks {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (f *fakeServerStore) deckCards(deckID string) []store.Card {
	out := []store.Card{}
	for _, c := range f.cards {
		if c.DeckID == deckID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (f *fakeServerStore) ListDecks(_ context.Context, filter store.DeckFilter) ([]store.Deck, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := []store.Deck{}
	for i := len(f.decks) - 1; i >= 0; i-- { // newest first
		d := f.decks[i]
		if filter.Kind != "" && d.Kind != filter.Kind {
			continue
		}
		if filter.Tier != "" && d.Tier != filter.Tier {
			continue
		}
		if filter.Age != "" {
			if age, _ := d.Properties["age_range"].(string); age != filter.Age {
				continue
			}
		}
		matched = append(matched, *d)
	}
	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (f *fakeServerStore) GetDeck(_ context.Context, id string) (*store.DeckWithCards, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deckByID(id)
	if d == nil {
		return nil, store.ErrNotFound
	}
	return &store.DeckWithCards{Deck: *d, Cards: f.deckCards(id)}, nil
}

func (f *fakeServerStore) GetAllDecksWithCards(_ context.Context, kind string) ([]store.DeckWithCards, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DeckWithCards{}
	for _, d := range f.decks {
		if d.Kind != kind {
			continue
		}
		out = append(out, store.DeckWithCards{Deck: *d, Cards: f.deckCards(d.ID)})
	}
	return out, nil
}

func (f *fakeServerStore) GetCategoriesWithCounts(_ context.Context) ([]store.CategoryCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.CategoryCount{}
	for _, d := range f.decks {
		if d.Kind != store.KindTrivia {
			continue
		}
		pic, _ := d.Properties["pic"].(string)
		if pic == "" {
			pic = "questionmark.circle"
		}
		out = append(out, store.CategoryCount{ID: d.ID, Name: d.Title, Pic: pic, CardCount: d.CardCount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeServerStore) CreateDeck(_ context.Context, title, kind, tier string, properties map[string]any) (*store.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if properties == nil {
		properties = map[string]any{}
	}
	if _, ok := properties["status"]; !ok {
		properties["status"] = store.DeckStatusDraft
	}
	if tier == "" {
		tier = store.TierFree
	}
	d := &store.Deck{
		ID:         f.id("deck"),
		Title:      title,
		Kind:       kind,
		Tier:       tier,
		Properties: properties,
		CreatedAt:  time.Now(),
	}
	f.decks = append(f.decks, d)
	out := *d
	return &out, nil
}

func (f *fakeServerStore) UpdateDeck(_ context.Context, id string, title *string, properties map[string]any) (*store.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deckByID(id)
	if d == nil {
		return nil, store.ErrNotFound
	}
	if title != nil {
		d.Title = *title
	}
	if properties != nil {
		d.Properties = properties
	}
	out := *d
	return &out, nil
}

func (f *fakeServerStore) SetDeckStatus(_ context.Context, id, status string) (*store.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deckByID(id)
	if d == nil {
		return nil, store.ErrNotFound
	}
	if d.Properties == nil {
		d.Properties = map[string]any{}
	}
	d.Properties["status"] = status
	out := *d
	return &out, nil
}

func (f *fakeServerStore) DeleteDeck(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.decks {
		if d.ID == id {
			f.decks = append(f.decks[:i], f.decks[i+1:]...)
			kept := f.cards[:0]
			for _, c := range f.cards {
				if c.DeckID != id {
					kept = append(kept, c)
				}
			}
			f.cards = kept
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeServerStore) ListGeneratedDecks(_ context.Context, familyID, playerID string) ([]store.DeckWithCards, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DeckWithCards{}
	for i := len(f.decks) - 1; i >= 0; i-- {
		d := f.decks[i]
		if fam, _ := d.Properties["family_id"].(string); fam != familyID {
			continue
		}
		if playerID != "" {
			if player, _ := d.Properties["player_id"].(string); player != playerID {
				continue
			}
		}
		out = append(out, store.DeckWithCards{Deck: *d, Cards: f.deckCards(d.ID)})
	}
	return out, nil
}

func (f *fakeServerStore) GetCard(_ context.Context, id string) (*store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) CreateCard(_ context.Context, deckID string, in store.NewCard) (*store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deckByID(deckID)
	if d == nil {
		return nil, store.ErrNotFound
	}
	props := in.Properties
	if props == nil {
		props = map[string]any{}
	}
	c := &store.Card{
		ID:         f.id("card"),
		DeckID:     deckID,
		Position:   d.CardCount,
		Question:   in.Question,
		Properties: props,
		Difficulty: in.Difficulty,
		SourceURL:  in.SourceURL,
		SourceDate: in.SourceDate,
		CreatedAt:  time.Now(),
	}
	f.cards = append(f.cards, c)
	d.CardCount++
	out := *c
	return &out, nil
}

func (f *fakeServerStore) UpdateCard(_ context.Context, cardID string, question *string, properties map[string]any, difficulty *string) (*store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.ID != cardID {
			continue
		}
		if question != nil {
			c.Question = *question
		}
		if properties != nil {
			c.Properties = properties
		}
		if difficulty != nil {
			c.Difficulty = *difficulty
		}
		out := *c
		return &out, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) DeleteCard(_ context.Context, deckID, cardID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.cards {
		if c.ID == cardID && c.DeckID == deckID {
			f.cards = append(f.cards[:i], f.cards[i+1:]...)
			if d := f.deckByID(deckID); d != nil {
				d.CardCount--
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeServerStore) ReorderCards(_ context.Context, deckID string, ids []string) ([]store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := map[string]*store.Card{}
	for _, c := range f.cards {
		if c.DeckID == deckID {
			current[c.ID] = c
		}
	}
	if len(ids) != len(current) {
		return nil, store.ErrCardDeckMismatch
	}
	for _, id := range ids {
		if _, ok := current[id]; !ok {
			return nil, store.ErrCardDeckMismatch
		}
	}
	out := make([]store.Card, 0, len(ids))
	for pos, id := range ids {
		current[id].Position = pos
		out = append(out, *current[id])
	}
	return out, nil
}

func (f *fakeServerStore) SearchCards(_ context.Context, _ string, limit int) ([]store.SearchResult, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, len(f.hits), nil
}

func (f *fakeServerStore) InsertQuestionReport(_ context.Context, in store.ReportInput) (*store.QuestionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rep := store.QuestionReport{
		ID:          f.id("report"),
		AppID:       in.AppID,
		ChallengeID: in.ChallengeID,
		Question:    in.Question,
		Reason:      in.Reason,
		ReportedAt:  time.Now(),
	}
	f.reports = append(f.reports, rep)
	return &rep, nil
}

func (f *fakeServerStore) ListQuestionReports(_ context.Context, appID string, limit, offset int) ([]store.QuestionReport, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := []store.QuestionReport{}
	for i := len(f.reports) - 1; i >= 0; i-- { // newest first
		if appID != "" && f.reports[i].AppID != appID {
			continue
		}
		matched = append(matched, f.reports[i])
	}
	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (f *fakeServerStore) ListRecentRuns(_ context.Context, limit int) ([]store.SourceRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := f.runs
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return append([]store.SourceRun{}, runs...), nil
}

func (f *fakeServerStore) CreateFamily(_ context.Context, name string) (*store.Family, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fam := &store.Family{ID: f.id("family"), Name: name, CreatedAt: time.Now()}
	f.families = append(f.families, fam)
	out := *fam
	return &out, nil
}

func (f *fakeServerStore) ListFamilies(_ context.Context) ([]store.Family, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Family{}
	for _, fam := range f.families {
		out = append(out, *fam)
	}
	return out, nil
}

func (f *fakeServerStore) GetFamily(_ context.Context, id string) (*store.Family, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fam := range f.families {
		if fam.ID == id {
			out := *fam
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) DeleteFamily(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fam := range f.families {
		if fam.ID != id {
			continue
		}
		f.families = append(f.families[:i], f.families[i+1:]...)
		people := f.people[:0]
		for _, p := range f.people {
			if p.FamilyID != id {
				people = append(people, p)
			}
		}
		f.people = people
		rels := f.rels[:0]
		for _, rel := range f.rels {
			if rel.FamilyID != id {
				rels = append(rels, rel)
			}
		}
		f.rels = rels
		return true, nil
	}
	return false, nil
}

func (f *fakeServerStore) FamilySnapshot(ctx context.Context, familyID string) (*store.FamilyTree, error) {
	fam, err := f.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tree := &store.FamilyTree{Family: *fam, People: []store.Person{}, Relationships: []store.Relationship{}}
	for _, p := range f.people {
		if p.FamilyID == familyID {
			tree.People = append(tree.People, *p)
		}
	}
	for _, rel := range f.rels {
		if rel.FamilyID == familyID {
			tree.Relationships = append(tree.Relationships, *rel)
		}
	}
	return tree, nil
}

func (f *fakeServerStore) CreatePerson(_ context.Context, familyID string, in store.PersonInput) (*store.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &store.Person{
		ID:          f.id("person"),
		FamilyID:    familyID,
		Name:        in.Name,
		Nickname:    in.Nickname,
		MaidenName:  in.MaidenName,
		Born:        in.Born,
		Status:      in.Status,
		Gender:      in.Gender,
		Player:      in.Player,
		Placeholder: in.Placeholder,
		PhotoURL:    in.PhotoURL,
		Notes:       in.Notes,
	}
	f.people = append(f.people, p)
	out := *p
	return &out, nil
}

func (f *fakeServerStore) ListPeople(_ context.Context, familyID string) ([]store.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Person{}
	for _, p := range f.people {
		if p.FamilyID == familyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeServerStore) GetPerson(_ context.Context, familyID, personID string) (*store.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.people {
		if p.FamilyID == familyID && p.ID == personID {
			out := *p
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) GetPersonByName(_ context.Context, familyID, name string) (*store.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.people {
		if p.FamilyID == familyID && strings.EqualFold(p.Name, name) {
			out := *p
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) FindPersonByName(ctx context.Context, familyID, name string) (*store.Person, error) {
	return f.GetPersonByName(ctx, familyID, name)
}

func (f *fakeServerStore) UpdatePerson(_ context.Context, familyID, personID string, patch store.PersonPatch) (*store.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.people {
		if p.FamilyID != familyID || p.ID != personID {
			continue
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Nickname != nil {
			p.Nickname = patch.Nickname
		}
		if patch.MaidenName != nil {
			p.MaidenName = patch.MaidenName
		}
		if patch.Born != nil {
			p.Born = patch.Born
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
		if patch.Gender != nil {
			p.Gender = patch.Gender
		}
		if patch.Player != nil {
			p.Player = *patch.Player
		}
		if patch.Placeholder != nil {
			p.Placeholder = *patch.Placeholder
		}
		if patch.PhotoURL != nil {
			p.PhotoURL = patch.PhotoURL
		}
		if patch.Notes != nil {
			p.Notes = patch.Notes
		}
		out := *p
		return &out, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeServerStore) DeletePerson(_ context.Context, familyID, personID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.people {
		if p.FamilyID == familyID && p.ID == personID {
			f.people = append(f.people[:i], f.people[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeServerStore) CreateRelationship(_ context.Context, familyID string, in store.RelationshipInput) (*store.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel := &store.Relationship{
		ID:        f.id("rel"),
		FamilyID:  familyID,
		Type:      in.Type,
		From:      in.From,
		To:        in.To,
		Year:      in.Year,
		Ended:     in.Ended,
		EndReason: in.EndReason,
		Notes:     in.Notes,
	}
	f.rels = append(f.rels, rel)
	out := *rel
	return &out, nil
}

func (f *fakeServerStore) ListRelationships(_ context.Context, familyID string) ([]store.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Relationship{}
	for _, rel := range f.rels {
		if rel.FamilyID == familyID {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (f *fakeServerStore) DeleteRelationship(_ context.Context, familyID, relID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rel := range f.rels {
		if rel.FamilyID == familyID && rel.ID == relID {
			f.rels = append(f.rels[:i], f.rels[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeServerStore) GetOrCreateChatSession(_ context.Context, familyID string) (*store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.FamilyID == familyID {
			out := *sess
			return &out, nil
		}
	}
	sess := &store.ChatSession{ID: f.id("session"), FamilyID: familyID, Messages: []store.ChatMessage{}}
	f.sessions = append(f.sessions, sess)
	out := *sess
	return &out, nil
}

func (f *fakeServerStore) AppendChatMessage(_ context.Context, sessionID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.ID == sessionID {
			sess.Messages = append(sess.Messages, store.ChatMessage{Role: role, Content: content})
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeDaemon is a minimal ingestion control surface.
type fakeDaemon struct {
	mu    sync.Mutex
	state string
}

func (d *fakeDaemon) setState(s string) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *fakeDaemon) Status() ingest.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ingest.Status{State: d.state}
}

func (d *fakeDaemon) Start() string  { d.setState("running"); return "started" }
func (d *fakeDaemon) Stop() string   { d.setState("stopped"); return "stopped" }
func (d *fakeDaemon) Pause() string  { d.setState("paused"); return "paused" }
func (d *fakeDaemon) Resume() string { d.setState("running"); return "resumed" }

func newTestServer(t *testing.T, db Store) *Server {
	t.Helper()
	srv, err := New(Options{DB: db, Daemon: &fakeDaemon{state: "stopped"}})
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

func TestNewRequiresStoreAndDaemon(t *testing.T) {
	_, err := New(Options{Daemon: &fakeDaemon{}})
	require.Error(t, err)

	_, err = New(Options{DB: newFakeServerStore()})
	require.Error(t, err)
}

func TestNewDefaultsAddr(t *testing.T) {
	srv := newTestServer(t, newFakeServerStore())
	assert.Equal(t, ":9810", srv.Addr())
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(t, newFakeServerStore()), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	decodeBody(t, rec, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "connected", out["database"])
}

func TestHealthDegraded(t *testing.T) {
	db := newFakeServerStore()
	db.pingErr = errors.New("connection refused")

	rec := doRequest(t, newTestServer(t, db), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	decodeBody(t, rec, &out)
	assert.Equal(t, "degraded", out["status"])
	assert.Contains(t, out["database"], "connection refused")
}

func TestDashboard(t *testing.T) {
	db := newFakeServerStore()
	_, err := db.CreateDeck(context.Background(), "US History", store.KindTrivia, "", nil)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t, db), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out observability.DashboardPayload
	decodeBody(t, rec, &out)
	assert.NotEmpty(t, out.Metrics)
	assert.Empty(t, out.Error)
	assert.Equal(t, 1, out.DecksByKind[store.KindTrivia])
}

func TestDashboardError(t *testing.T) {
	db := newFakeServerStore()
	db.statsErr = errors.New("pool exhausted")

	rec := doRequest(t, newTestServer(t, db), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var out observability.DashboardPayload
	decodeBody(t, rec, &out)
	assert.Contains(t, out.Error, "Database error")
}

func TestPrometheusEndpoint(t *testing.T) {
	registry := promclient.NewRegistry()
	metrics, err := observability.InitMetrics(registry)
	require.NoError(t, err)

	srv, err := New(Options{
		DB:       newFakeServerStore(),
		Daemon:   &fakeDaemon{state: "stopped"},
		Metrics:  metrics,
		Registry: registry,
	})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/metrics/prometheus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cardengine_http_requests_total")
}

func TestPrometheusEndpointAbsentWithoutRegistry(t *testing.T) {
	rec := doRequest(t, newTestServer(t, newFakeServerStore()), http.MethodGet, "/metrics/prometheus", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := doRequest(t, newTestServer(t, newFakeServerStore()), http.MethodOptions, "/api/v1/decks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestUnknownRouteReturns404(t *testing.T) {
	rec := doRequest(t, newTestServer(t, newFakeServerStore()), http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
