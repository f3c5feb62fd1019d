// Package server exposes the card engine over HTTP: generic deck
// routes, the app-facing flashcard and trivia adapters, studio CRUD,
// question reports, ingestion controls, family tree routes and the
// operational endpoints (health, metrics).
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billdonner/card-engine/pkg/family"
	"github.com/billdonner/card-engine/pkg/ingest"
	"github.com/billdonner/card-engine/pkg/observability"
	"github.com/billdonner/card-engine/pkg/store"
)

// Store is the persistence surface the HTTP handlers drive. *store.Store
// implements it; tests substitute an in-memory fake.
type Store interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context) (*store.Stats, error)
	DatabaseSizeBytes(ctx context.Context) (int64, error)
	PoolStats() sql.DBStats

	ListDecks(ctx context.Context, f store.DeckFilter) ([]store.Deck, int, error)
	GetDeck(ctx context.Context, id string) (*store.DeckWithCards, error)
	GetAllDecksWithCards(ctx context.Context, kind string) ([]store.DeckWithCards, error)
	GetCategoriesWithCounts(ctx context.Context) ([]store.CategoryCount, error)
	CreateDeck(ctx context.Context, title, kind, tier string, properties map[string]any) (*store.Deck, error)
	UpdateDeck(ctx context.Context, id string, title *string, properties map[string]any) (*store.Deck, error)
	SetDeckStatus(ctx context.Context, id, status string) (*store.Deck, error)
	DeleteDeck(ctx context.Context, id string) (bool, error)
	ListGeneratedDecks(ctx context.Context, familyID, playerID string) ([]store.DeckWithCards, error)

	GetCard(ctx context.Context, id string) (*store.Card, error)
	CreateCard(ctx context.Context, deckID string, in store.NewCard) (*store.Card, error)
	UpdateCard(ctx context.Context, cardID string, question *string, properties map[string]any, difficulty *string) (*store.Card, error)
	DeleteCard(ctx context.Context, deckID, cardID string) (bool, error)
	ReorderCards(ctx context.Context, deckID string, ids []string) ([]store.Card, error)
	SearchCards(ctx context.Context, query string, limit int) ([]store.SearchResult, int, error)

	InsertQuestionReport(ctx context.Context, in store.ReportInput) (*store.QuestionReport, error)
	ListQuestionReports(ctx context.Context, appID string, limit, offset int) ([]store.QuestionReport, int, error)
	ListRecentRuns(ctx context.Context, limit int) ([]store.SourceRun, error)

	CreateFamily(ctx context.Context, name string) (*store.Family, error)
	ListFamilies(ctx context.Context) ([]store.Family, error)
	GetFamily(ctx context.Context, id string) (*store.Family, error)
	DeleteFamily(ctx context.Context, id string) (bool, error)
	FamilySnapshot(ctx context.Context, familyID string) (*store.FamilyTree, error)
	CreatePerson(ctx context.Context, familyID string, in store.PersonInput) (*store.Person, error)
	ListPeople(ctx context.Context, familyID string) ([]store.Person, error)
	GetPerson(ctx context.Context, familyID, personID string) (*store.Person, error)
	GetPersonByName(ctx context.Context, familyID, name string) (*store.Person, error)
	FindPersonByName(ctx context.Context, familyID, name string) (*store.Person, error)
	UpdatePerson(ctx context.Context, familyID, personID string, patch store.PersonPatch) (*store.Person, error)
	DeletePerson(ctx context.Context, familyID, personID string) (bool, error)
	CreateRelationship(ctx context.Context, familyID string, in store.RelationshipInput) (*store.Relationship, error)
	ListRelationships(ctx context.Context, familyID string) ([]store.Relationship, error)
	DeleteRelationship(ctx context.Context, familyID, relID string) (bool, error)
	GetOrCreateChatSession(ctx context.Context, familyID string) (*store.ChatSession, error)
	AppendChatMessage(ctx context.Context, sessionID, role, content string) error
}

// Daemon is the ingestion control surface the HTTP layer drives.
type Daemon interface {
	Status() ingest.Status
	Start() string
	Stop() string
	Pause() string
	Resume() string
}

var (
	_ Store  = (*store.Store)(nil)
	_ Daemon = (*ingest.Daemon)(nil)
)

// Options configure a Server. DB and Daemon are required; the rest
// degrade gracefully when absent (no chat keys, no metrics).
type Options struct {
	Addr     string
	DB       Store
	Daemon   Daemon
	Chat     *family.Chat
	Metrics  *observability.Metrics
	Registry *promclient.Registry
}

// Server serves the card-engine HTTP API.
type Server struct {
	db        Store
	daemon    Daemon
	chat      *family.Chat
	metrics   *observability.Metrics
	registry  *promclient.Registry
	window    *observability.RequestWindow
	dashboard *observability.Dashboard

	httpServer *http.Server
}

// New assembles a server with its full route table.
func New(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Daemon == nil {
		return nil, fmt.Errorf("daemon is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":9810"
	}

	s := &Server{
		db:       opts.DB,
		daemon:   opts.Daemon,
		chat:     opts.Chat,
		metrics:  opts.Metrics,
		registry: opts.Registry,
		window:   observability.NewRequestWindow(60 * time.Second),
	}
	s.dashboard = observability.NewDashboard(opts.DB, s.window)
	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: s.routes(),
	}
	return s, nil
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving requests until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Order: logging -> metrics -> cors.
	r.Use(loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleDashboard)
	if s.registry != nil {
		r.Get("/metrics/prometheus", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/decks", func(r chi.Router) {
			r.Get("/", s.handleListDecks)
			r.Get("/{deckID}", s.handleGetDeck)
		})

		r.Route("/flashcards", func(r chi.Router) {
			r.Get("/", s.handleListFlashcardDecks)
			r.Get("/{deckID}", s.handleGetFlashcardDeck)
		})

		r.Route("/trivia", func(r chi.Router) {
			r.Get("/gamedata", s.handleGameData)
			r.Get("/categories", s.handleCategories)
		})

		r.Route("/studio", func(r chi.Router) {
			r.Post("/decks", s.handleCreateDeck)
			r.Patch("/decks/{deckID}", s.handleUpdateDeck)
			r.Post("/decks/{deckID}/publish", s.handlePublishDeck)
			r.Post("/decks/{deckID}/unpublish", s.handleUnpublishDeck)
			r.Delete("/decks/{deckID}", s.handleDeleteDeck)
			r.Post("/decks/{deckID}/cards", s.handleCreateCard)
			r.Patch("/decks/{deckID}/cards/{cardID}", s.handleUpdateCard)
			r.Delete("/decks/{deckID}/cards/{cardID}", s.handleDeleteCard)
			r.Post("/decks/{deckID}/cards/reorder", s.handleReorderCards)
			r.Get("/search", s.handleSearch)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleCreateReport)
			r.Get("/", s.handleListReports)
		})

		r.Route("/ingestion", func(r chi.Router) {
			r.Get("/status", s.handleIngestionStatus)
			r.Post("/start", s.handleIngestionStart)
			r.Post("/stop", s.handleIngestionStop)
			r.Post("/pause", s.handleIngestionPause)
			r.Post("/resume", s.handleIngestionResume)
			r.Get("/runs", s.handleIngestionRuns)
		})

		r.Route("/family", func(r chi.Router) {
			r.Post("/", s.handleCreateFamily)
			r.Get("/", s.handleListFamilies)
			r.Route("/{familyID}", func(r chi.Router) {
				r.Get("/", s.handleFamilyTree)
				r.Delete("/", s.handleDeleteFamily)
				r.Post("/people", s.handleCreatePerson)
				r.Patch("/people/{personID}", s.handleUpdatePerson)
				r.Delete("/people/{personID}", s.handleDeletePerson)
				r.Post("/relationships", s.handleCreateRelationship)
				r.Delete("/relationships/{relID}", s.handleDeleteRelationship)
				r.Get("/tree", s.handleFamilyTree)
				r.Get("/players", s.handlePlayers)
				r.Get("/open_items", s.handleOpenItems)
				r.Post("/chat", s.handleChat)
				r.Post("/generate/{playerID}", s.handleGenerateDecks)
				r.Get("/deck/{playerID}", s.handleGeneratedDecks)
			})
		})
	})

	return r
}
