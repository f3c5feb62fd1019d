package family

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/billdonner/card-engine/pkg/llms"
	"github.com/billdonner/card-engine/pkg/store"
)

const (
	chatTemperature = 0.3
	chatMaxTokens   = 2000

	// historyWindow bounds how much prior conversation is replayed to
	// the model.
	historyWindow = 20
)

// NoKeyReply is returned when no LLM provider is configured.
const NoKeyReply = "No LLM API key configured. Set CE_OPENAI_API_KEY or CE_ANTHROPIC_API_KEY."

const chatSystemPrompt = `You are a family tree assistant. The user will describe their family members conversationally. Your job is to extract structured data and return JSON.

Always respond with a JSON object (no markdown fences) containing:
{
  "reply": "A friendly human-readable response acknowledging what you understood.",
  "patches": [
    {
      "op": "add_person",
      "name": "Harold",
      "nickname": null,
      "maiden_name": null,
      "born": null,
      "status": "living",
      "player": false,
      "notes": null
    },
    {
      "op": "add_relationship",
      "type": "parent_of",
      "from_name": "Harold",
      "to_name": "Billy"
    },
    {
      "op": "update_person",
      "name": "Harold",
      "fields": {"born": 1945, "nickname": "Grandpa Harold"}
    }
  ]
}

Valid patch operations:
- add_person: Add a new family member. Fields: name (required), nickname, maiden_name, born, status, player, notes.
- update_person: Update an existing person. Fields: name (to find them), fields (dict of updates).
- add_relationship: Add a relationship. Fields: type (married/parent_of/divorced), from_name, to_name, year, notes.

Relationship type semantics:
- parent_of: from_name is the parent, to_name is the child
- married: from_name and to_name are spouses
- divorced: from_name and to_name were formerly married

If the user mentions someone is a grandfather/grandmother, that implies parent_of relationships through the appropriate intermediate generation. Create the intermediate person as a placeholder if they haven't been mentioned yet.

If unsure about a detail, ask the user in the reply. Never guess birth years or names.
Return ONLY the JSON object, no other text.
`

var chatFencePattern = regexp.MustCompile("(?i)```(?:json)?\\s*")

// Patch is one tree-mutation operation decoded from the LLM reply.
type Patch interface {
	patchOp() string
}

// AddPerson adds a new family member unless one of that name exists.
type AddPerson struct {
	Name        string  `mapstructure:"name"`
	Nickname    *string `mapstructure:"nickname"`
	MaidenName  *string `mapstructure:"maiden_name"`
	Born        *int    `mapstructure:"born"`
	Status      string  `mapstructure:"status"`
	Gender      *string `mapstructure:"gender"`
	Notes       *string `mapstructure:"notes"`
	Player      bool    `mapstructure:"player"`
	Placeholder bool    `mapstructure:"placeholder"`
}

func (AddPerson) patchOp() string { return "add_person" }

// UpdatePerson patches an existing person found by fuzzy name lookup.
type UpdatePerson struct {
	Name   string         `mapstructure:"name"`
	Fields map[string]any `mapstructure:"fields"`
}

func (UpdatePerson) patchOp() string { return "update_person" }

// AddRelationship links two people found by fuzzy name lookup.
type AddRelationship struct {
	Type     string  `mapstructure:"type"`
	FromName string  `mapstructure:"from_name"`
	ToName   string  `mapstructure:"to_name"`
	Year     *int    `mapstructure:"year"`
	Notes    *string `mapstructure:"notes"`
}

func (AddRelationship) patchOp() string { return "add_relationship" }

// ChatResult is one parsed assistant turn.
type ChatResult struct {
	Reply   string
	Patches []Patch
}

// Chat drives the conversational family tree builder against an LLM
// provider.
type Chat struct {
	provider llms.Provider
}

// NewChat wraps an existing provider; nil means no key is configured.
func NewChat(provider llms.Provider) *Chat {
	return &Chat{provider: provider}
}

// NewChatFromKeys routes the configured chat model to a provider from
// the available API keys.
func NewChatFromKeys(model, openaiKey, anthropicKey string) *Chat {
	return &Chat{provider: llms.ForModel(model, openaiKey, anthropicKey, chatTemperature, chatMaxTokens)}
}

// Ask sends one user turn together with the current tree context and
// recent history, then parses the reply into text plus patches. Ask
// never returns an error: failures degrade to an explanatory reply with
// no patches.
func (c *Chat) Ask(ctx context.Context, message string, people []store.Person,
	relationships []store.Relationship, history []store.ChatMessage) ChatResult {

	if c == nil || c.provider == nil {
		return ChatResult{Reply: NoKeyReply}
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages := make([]llms.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, llms.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llms.Message{
		Role:    llms.RoleUser,
		Content: fmt.Sprintf("%s\n\nUser says: %s", treeContext(people, relationships), message),
	})

	content, err := c.provider.Generate(ctx, chatSystemPrompt, messages)
	if err != nil {
		slog.Error("family chat request failed", "error", err)
		return ChatResult{Reply: fmt.Sprintf("LLM error: %v", err)}
	}
	return parseChatResponse(content)
}

// treeContext renders the current tree as a text block the model can
// ground its extraction on.
func treeContext(people []store.Person, relationships []store.Relationship) string {
	if len(people) == 0 {
		return "The family tree is currently empty."
	}

	var b strings.Builder
	b.WriteString("Current family tree:")
	for _, p := range people {
		parts := []string{p.Name}
		if p.Nickname != nil && *p.Nickname != "" {
			parts = append(parts, fmt.Sprintf("(nickname: %s)", *p.Nickname))
		}
		if p.Born != nil {
			parts = append(parts, fmt.Sprintf("born %d", *p.Born))
		}
		if p.Status == store.StatusDeceased {
			parts = append(parts, "(deceased)")
		}
		if p.Player {
			parts = append(parts, "[PLAYER]")
		}
		if p.Placeholder {
			parts = append(parts, "[placeholder - needs more info]")
		}
		b.WriteString("\n  - " + strings.Join(parts, " "))
	}

	if len(relationships) > 0 {
		b.WriteString("\n\nRelationships:")
		names := make(map[string]string, len(people))
		for _, p := range people {
			names[p.ID] = p.Name
		}
		lookup := func(id string) string {
			if name, ok := names[id]; ok {
				return name
			}
			return "?"
		}
		for _, r := range relationships {
			switch r.Type {
			case store.RelParentOf:
				b.WriteString(fmt.Sprintf("\n  - %s is parent of %s", lookup(r.From), lookup(r.To)))
			case store.RelMarried:
				b.WriteString(fmt.Sprintf("\n  - %s married %s", lookup(r.From), lookup(r.To)))
			case store.RelDivorced:
				b.WriteString(fmt.Sprintf("\n  - %s divorced %s", lookup(r.From), lookup(r.To)))
			}
		}
	}

	return b.String()
}

// parseChatResponse extracts {reply, patches} from model output,
// tolerating fences and surrounding prose. Unparseable content becomes
// the reply verbatim with no patches.
func parseChatResponse(content string) ChatResult {
	cleaned := strings.TrimSpace(chatFencePattern.ReplaceAllString(content, ""))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start >= end {
		return ChatResult{Reply: content}
	}

	var parsed struct {
		Reply   string           `json:"reply"`
		Patches []map[string]any `json:"patches"`
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &parsed); err != nil {
		slog.Warn("failed to parse chat reply JSON")
		return ChatResult{Reply: content}
	}
	return ChatResult{Reply: parsed.Reply, Patches: decodePatches(parsed.Patches)}
}

// decodePatches maps raw patch objects onto their typed variants by op
// tag. Unknown or undecodable patches are logged and dropped.
func decodePatches(raw []map[string]any) []Patch {
	var patches []Patch
	for _, m := range raw {
		op, _ := m["op"].(string)

		var (
			patch Patch
			err   error
		)
		switch op {
		case "add_person":
			var p AddPerson
			err = mapstructure.Decode(m, &p)
			patch = p
		case "update_person":
			var p UpdatePerson
			err = mapstructure.Decode(m, &p)
			patch = p
		case "add_relationship":
			var p AddRelationship
			err = mapstructure.Decode(m, &p)
			patch = p
		default:
			slog.Warn("dropping unknown patch op", "op", op)
			continue
		}
		if err != nil {
			slog.Warn("failed to decode patch", "op", op, "error", err)
			continue
		}
		patches = append(patches, patch)
	}
	return patches
}

// PatchStore is the slice of the store patches are applied through.
type PatchStore interface {
	GetPersonByName(ctx context.Context, familyID, name string) (*store.Person, error)
	FindPersonByName(ctx context.Context, familyID, name string) (*store.Person, error)
	CreatePerson(ctx context.Context, familyID string, in store.PersonInput) (*store.Person, error)
	UpdatePerson(ctx context.Context, familyID, personID string, patch store.PersonPatch) (*store.Person, error)
	CreateRelationship(ctx context.Context, familyID string, in store.RelationshipInput) (*store.Relationship, error)
}

// personFields mirrors the update_person field bag.
type personFields struct {
	Name        *string `mapstructure:"name"`
	Nickname    *string `mapstructure:"nickname"`
	MaidenName  *string `mapstructure:"maiden_name"`
	Born        *int    `mapstructure:"born"`
	Status      *string `mapstructure:"status"`
	Gender      *string `mapstructure:"gender"`
	Notes       *string `mapstructure:"notes"`
	Player      *bool   `mapstructure:"player"`
	Placeholder *bool   `mapstructure:"placeholder"`
	PhotoURL    *string `mapstructure:"photo_url"`
}

// ApplyPatch applies one decoded patch against the store. It returns
// whether a write happened; validation misses (unknown names, invalid
// types, existing people) skip quietly so one bad patch never blocks
// the rest.
func ApplyPatch(ctx context.Context, db PatchStore, familyID string, patch Patch) (bool, error) {
	switch p := patch.(type) {
	case AddPerson:
		if p.Name == "" {
			return false, nil
		}
		if _, err := db.GetPersonByName(ctx, familyID, p.Name); err == nil {
			slog.Info("person already exists, skipping add", "name", p.Name)
			return false, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		status := p.Status
		if status == "" {
			status = store.StatusLiving
		}
		_, err := db.CreatePerson(ctx, familyID, store.PersonInput{
			Name:        p.Name,
			Nickname:    p.Nickname,
			MaidenName:  p.MaidenName,
			Born:        p.Born,
			Status:      status,
			Gender:      p.Gender,
			Notes:       p.Notes,
			Player:      p.Player,
			Placeholder: p.Placeholder,
		})
		if err != nil {
			return false, err
		}
		return true, nil

	case UpdatePerson:
		if p.Name == "" || len(p.Fields) == 0 {
			return false, nil
		}
		person, err := db.FindPersonByName(ctx, familyID, p.Name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Warn("cannot find person to update", "name", p.Name)
				return false, nil
			}
			return false, err
		}
		var fields personFields
		if err := mapstructure.Decode(p.Fields, &fields); err != nil {
			return false, fmt.Errorf("failed to decode update fields: %w", err)
		}
		_, err = db.UpdatePerson(ctx, familyID, person.ID, store.PersonPatch{
			Name:        fields.Name,
			Nickname:    fields.Nickname,
			MaidenName:  fields.MaidenName,
			Born:        fields.Born,
			Status:      fields.Status,
			Gender:      fields.Gender,
			Notes:       fields.Notes,
			Player:      fields.Player,
			Placeholder: fields.Placeholder,
			PhotoURL:    fields.PhotoURL,
		})
		if err != nil {
			return false, err
		}
		return true, nil

	case AddRelationship:
		if p.Type == "" || p.FromName == "" || p.ToName == "" {
			return false, nil
		}
		if !store.ValidRelationshipType(p.Type) {
			return false, nil
		}
		from, err := db.FindPersonByName(ctx, familyID, p.FromName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Warn("cannot resolve relationship endpoint", "name", p.FromName)
				return false, nil
			}
			return false, err
		}
		to, err := db.FindPersonByName(ctx, familyID, p.ToName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Warn("cannot resolve relationship endpoint", "name", p.ToName)
				return false, nil
			}
			return false, err
		}
		_, err = db.CreateRelationship(ctx, familyID, store.RelationshipInput{
			Type:  p.Type,
			From:  from.ID,
			To:    to.ID,
			Year:  p.Year,
			Notes: p.Notes,
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
