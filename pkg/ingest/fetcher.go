package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/billdonner/card-engine/pkg/llms"
	"github.com/billdonner/card-engine/pkg/store"
)

const (
	fetchModel       = "gpt-4o-mini"
	fetchTemperature = 0.8
	fetchMaxTokens   = 2000
	fetchTimeout     = 60
)

const fetchSystemPrompt = "You are a trivia question generator. Generate unique, factually accurate " +
	"trivia questions. Always respond with valid JSON only."

var difficultyGuidance = map[string]string{
	"easy":   "Questions should be common knowledge that most people would know",
	"medium": "Questions should require some specific knowledge but not be obscure",
	"hard":   "Questions should be challenging and require specialized knowledge",
}

var difficulties = []string{"easy", "medium", "hard"}

// fencePattern strips markdown code fences from model output.
var fencePattern = regexp.MustCompile("(?i)```(?:json)?\\s*")

// Candidate is one parsed trivia question ready for dedup and insert.
type Candidate struct {
	Question     string
	Category     string
	Difficulty   string
	Choices      []store.Choice
	CorrectIndex int
	Explanation  string
	Hint         string
}

// CorrectText returns the text of the correct choice.
func (c Candidate) CorrectText() string {
	if c.CorrectIndex < 0 || c.CorrectIndex >= len(c.Choices) {
		return ""
	}
	return c.Choices[c.CorrectIndex].Text
}

// Fetcher generates trivia question batches through an LLM provider.
type Fetcher struct {
	provider llms.Provider
}

// NewFetcher wraps an existing provider, used by tests and alternative
// upstreams.
func NewFetcher(provider llms.Provider) *Fetcher {
	return &Fetcher{provider: provider}
}

// NewOpenAIFetcher builds a fetcher over the OpenAI chat-completions
// API with the generation parameters the daemon uses.
func NewOpenAIFetcher(apiKey string) (*Fetcher, error) {
	provider, err := llms.NewOpenAIProvider(llms.ProviderConfig{
		Model:       fetchModel,
		APIKey:      apiKey,
		Temperature: fetchTemperature,
		MaxTokens:   fetchMaxTokens,
		Timeout:     fetchTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build fetcher: %w", err)
	}
	return &Fetcher{provider: provider}, nil
}

func buildPrompt(count int, category, difficulty string) string {
	guidance, ok := difficultyGuidance[difficulty]
	if !ok {
		guidance = difficultyGuidance["medium"]
	}
	return fmt.Sprintf(`Generate %d unique trivia questions about %s at %s difficulty level.

Return a JSON array with this exact structure:
[
  {
    "question": "The question text?",
    "correct_answer": "The correct answer",
    "incorrect_answers": ["Wrong 1", "Wrong 2", "Wrong 3"],
    "explanation": "Brief explanation of why the answer is correct",
    "hint": "A subtle clue that helps without giving away the answer"
  }
]

Requirements:
- Questions must be factually accurate
- Each question must have exactly 3 incorrect answers
- Incorrect answers should be plausible but clearly wrong
- For %s difficulty: %s
- Return ONLY the JSON array, no other text`, count, category, difficulty, difficulty, guidance)
}

type rawQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
	Explanation      string   `json:"explanation"`
	Hint             string   `json:"hint"`
}

// parseBatch turns raw model output into candidates. Items missing a
// question, answer or three distractors are dropped; the correct
// answer is spliced in at a uniformly random position.
func parseBatch(content, category, difficulty string) []Candidate {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || start >= end {
		slog.Warn("no JSON array in model response", "category", category)
		return nil
	}

	var items []rawQuestion
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		slog.Warn("failed to parse model response", "category", category, "error", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		if item.Question == "" || item.CorrectAnswer == "" || len(item.IncorrectAnswers) < 3 {
			continue
		}

		correctIndex := rand.Intn(4)
		answers := append([]string{}, item.IncorrectAnswers[:3]...)
		answers = slices.Insert(answers, correctIndex, item.CorrectAnswer)

		choices := make([]store.Choice, len(answers))
		for i, text := range answers {
			choices[i] = store.Choice{Text: text, IsCorrect: i == correctIndex}
		}

		candidates = append(candidates, Candidate{
			Question:     item.Question,
			Category:     category,
			Difficulty:   difficulty,
			Choices:      choices,
			CorrectIndex: correctIndex,
			Explanation:  item.Explanation,
			Hint:         item.Hint,
		})
	}
	return candidates
}

// generateBatch requests one batch from the provider and parses it.
// Failures are logged and yield an empty batch, never an error that
// would abort the cycle.
func (f *Fetcher) generateBatch(ctx context.Context, category, difficulty string, count int) []Candidate {
	prompt := buildPrompt(count, category, difficulty)
	content, err := f.provider.Generate(ctx, fetchSystemPrompt, []llms.Message{
		{Role: llms.RoleUser, Content: prompt},
	})
	if err != nil {
		slog.Error("batch generation failed", "category", category, "difficulty", difficulty, "error", err)
		return nil
	}
	return parseBatch(content, category, difficulty)
}

// FetchQuestions runs up to concurrentBatches generation calls in
// parallel, each for a distinct random category at a random difficulty,
// and merges the results. A failed batch never cancels its siblings.
func (f *Fetcher) FetchQuestions(ctx context.Context, batchSize, concurrentBatches int) ([]Candidate, error) {
	categories := append([]string(nil), CanonicalCategories...)
	rand.Shuffle(len(categories), func(i, j int) {
		categories[i], categories[j] = categories[j], categories[i]
	})

	n := concurrentBatches
	if n > len(categories) {
		n = len(categories)
	}

	results := make([][]Candidate, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		category := categories[i]
		difficulty := difficulties[rand.Intn(len(difficulties))]
		g.Go(func() error {
			results[i] = f.generateBatch(gctx, category, difficulty, batchSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := []Candidate{}
	for _, batch := range results {
		merged = append(merged, batch...)
	}
	return merged, nil
}
