package family

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billdonner/card-engine/pkg/llms"
	"github.com/billdonner/card-engine/pkg/store"
)

func ptr[T any](v T) *T { return &v }

func TestTreeContextEmpty(t *testing.T) {
	assert.Equal(t, "The family tree is currently empty.", treeContext(nil, nil))
}

func TestTreeContextFull(t *testing.T) {
	people := []store.Person{
		{ID: "harold", Name: "Harold", Nickname: ptr("Grandpa Harold"),
			Born: ptr(1945), Status: store.StatusDeceased},
		{ID: "billy", Name: "Billy", Status: store.StatusLiving, Player: true},
		{ID: "mys", Name: "Mystery", Status: store.StatusLiving, Placeholder: true},
	}
	relationships := []store.Relationship{
		{Type: store.RelParentOf, From: "harold", To: "billy"},
		{Type: store.RelMarried, From: "harold", To: "rita"},
		{Type: store.RelDivorced, From: "billy", To: "mys"},
	}

	want := "Current family tree:\n" +
		"  - Harold (nickname: Grandpa Harold) born 1945 (deceased)\n" +
		"  - Billy [PLAYER]\n" +
		"  - Mystery [placeholder - needs more info]\n" +
		"\n" +
		"Relationships:\n" +
		"  - Harold is parent of Billy\n" +
		"  - Harold married ?\n" +
		"  - Billy divorced Mystery"
	assert.Equal(t, want, treeContext(people, relationships))
}

func TestParseChatResponse(t *testing.T) {
	payload := `{"reply": "Got it!", "patches": [{"op": "add_person", "name": "Harold"}]}`

	cases := map[string]string{
		"plain":         payload,
		"fenced":        "```json\n" + payload + "\n```",
		"bare fence":    "```\n" + payload + "\n```",
		"prose wrapped": "Sure, here you go:\n" + payload + "\nAnything else?",
	}
	for name, content := range cases {
		res := parseChatResponse(content)
		assert.Equal(t, "Got it!", res.Reply, "case %s", name)
		require.Len(t, res.Patches, 1, "case %s", name)
		add, ok := res.Patches[0].(AddPerson)
		require.True(t, ok, "case %s", name)
		assert.Equal(t, "Harold", add.Name, "case %s", name)
	}
}

func TestParseChatResponseFallsBackToRawText(t *testing.T) {
	for _, content := range []string{
		"I'm sorry, I cannot help with that.",
		"{oops, not json",
		"{broken json}",
	} {
		res := parseChatResponse(content)
		assert.Equal(t, content, res.Reply)
		assert.Empty(t, res.Patches)
	}
}

func TestDecodePatches(t *testing.T) {
	var raw []map[string]any
	require.NoError(t, json.Unmarshal([]byte(`[
		{"op": "add_person", "name": "Harold", "nickname": "Grandpa",
		 "maiden_name": null, "born": 1945, "status": "living", "player": false},
		{"op": "update_person", "name": "Harold", "fields": {"born": 1946}},
		{"op": "add_relationship", "type": "parent_of",
		 "from_name": "Harold", "to_name": "Billy", "year": 1970},
		{"op": "paint_the_fence"},
		{"name": "missing op"}
	]`), &raw))

	patches := decodePatches(raw)
	require.Len(t, patches, 3)

	add, ok := patches[0].(AddPerson)
	require.True(t, ok)
	assert.Equal(t, "Harold", add.Name)
	require.NotNil(t, add.Nickname)
	assert.Equal(t, "Grandpa", *add.Nickname)
	assert.Nil(t, add.MaidenName)
	require.NotNil(t, add.Born)
	assert.Equal(t, 1945, *add.Born)
	assert.Equal(t, "living", add.Status)
	assert.False(t, add.Player)

	up, ok := patches[1].(UpdatePerson)
	require.True(t, ok)
	assert.Equal(t, "Harold", up.Name)
	assert.Equal(t, float64(1946), up.Fields["born"])

	rel, ok := patches[2].(AddRelationship)
	require.True(t, ok)
	assert.Equal(t, store.RelParentOf, rel.Type)
	assert.Equal(t, "Harold", rel.FromName)
	assert.Equal(t, "Billy", rel.ToName)
	require.NotNil(t, rel.Year)
	assert.Equal(t, 1970, *rel.Year)
}

type scriptedProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	system   string
	messages []llms.Message
}

func (p *scriptedProvider) Generate(_ context.Context, system string, messages []llms.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.system = system
	p.messages = append([]llms.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func TestAskNoProvider(t *testing.T) {
	res := NewChat(nil).Ask(context.Background(), "hello", nil, nil, nil)
	assert.Equal(t, NoKeyReply, res.Reply)
	assert.Empty(t, res.Patches)

	var chat *Chat
	res = chat.Ask(context.Background(), "hello", nil, nil, nil)
	assert.Equal(t, NoKeyReply, res.Reply)
}

func TestAskSendsTreeContext(t *testing.T) {
	provider := &scriptedProvider{
		reply: "```json\n{\"reply\": \"Added Billy!\", \"patches\": [{\"op\": \"add_person\", \"name\": \"Billy\"}]}\n```",
	}
	chat := NewChat(provider)

	people := []store.Person{{ID: "h1", Name: "Harold", Status: store.StatusLiving}}
	history := []store.ChatMessage{
		{Role: llms.RoleUser, Content: "hello"},
		{Role: llms.RoleAssistant, Content: "hi there"},
	}

	res := chat.Ask(context.Background(), "Add my son Billy", people, nil, history)
	assert.Equal(t, "Added Billy!", res.Reply)
	require.Len(t, res.Patches, 1)
	add, ok := res.Patches[0].(AddPerson)
	require.True(t, ok)
	assert.Equal(t, "Billy", add.Name)

	assert.Contains(t, provider.system, "You are a family tree assistant.")
	require.Len(t, provider.messages, 3)
	assert.Equal(t, llms.Message{Role: llms.RoleUser, Content: "hello"}, provider.messages[0])

	last := provider.messages[2]
	assert.Equal(t, llms.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Current family tree:")
	assert.Contains(t, last.Content, "  - Harold")
	assert.True(t, strings.HasSuffix(last.Content, "User says: Add my son Billy"))
}

func TestAskTrimsHistory(t *testing.T) {
	provider := &scriptedProvider{reply: `{"reply": "ok", "patches": []}`}
	chat := NewChat(provider)

	var history []store.ChatMessage
	for i := range 30 {
		history = append(history, store.ChatMessage{
			Role: llms.RoleUser, Content: fmt.Sprintf("msg-%d", i),
		})
	}

	chat.Ask(context.Background(), "latest", nil, nil, history)
	require.Len(t, provider.messages, historyWindow+1)
	assert.Equal(t, "msg-10", provider.messages[0].Content)
}

func TestAskProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("status 429")}
	res := NewChat(provider).Ask(context.Background(), "hello", nil, nil, nil)
	assert.Equal(t, "LLM error: status 429", res.Reply)
	assert.Empty(t, res.Patches)
}

type fakePatchStore struct {
	seq     int
	people  []*store.Person
	created []store.PersonInput
	updated map[string]store.PersonPatch
	rels    []store.RelationshipInput
}

func newFakePatchStore(names ...string) *fakePatchStore {
	f := &fakePatchStore{updated: make(map[string]store.PersonPatch)}
	for _, name := range names {
		f.addPerson(name)
	}
	return f
}

func (f *fakePatchStore) addPerson(name string) *store.Person {
	f.seq++
	p := &store.Person{
		ID: fmt.Sprintf("p-%d", f.seq), Name: name, Status: store.StatusLiving,
	}
	f.people = append(f.people, p)
	return p
}

func (f *fakePatchStore) GetPersonByName(_ context.Context, _, name string) (*store.Person, error) {
	for _, p := range f.people {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
		if p.Nickname != nil && strings.EqualFold(*p.Nickname, name) {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePatchStore) FindPersonByName(ctx context.Context, familyID, name string) (*store.Person, error) {
	if p, err := f.GetPersonByName(ctx, familyID, name); err == nil {
		return p, nil
	}
	lower := strings.ToLower(name)
	for _, p := range f.people {
		if strings.Contains(strings.ToLower(p.Name), lower) {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePatchStore) CreatePerson(_ context.Context, _ string, in store.PersonInput) (*store.Person, error) {
	f.created = append(f.created, in)
	return f.addPerson(in.Name), nil
}

func (f *fakePatchStore) UpdatePerson(_ context.Context, _, personID string, patch store.PersonPatch) (*store.Person, error) {
	f.updated[personID] = patch
	for _, p := range f.people {
		if p.ID == personID {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePatchStore) CreateRelationship(_ context.Context, _ string, in store.RelationshipInput) (*store.Relationship, error) {
	f.rels = append(f.rels, in)
	return &store.Relationship{
		ID: fmt.Sprintf("r-%d", len(f.rels)), Type: in.Type, From: in.From, To: in.To,
	}, nil
}

func TestApplyPatchAddPerson(t *testing.T) {
	fs := newFakePatchStore()
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddPerson{
		Name: "Harold", Nickname: ptr("Grandpa"), Born: ptr(1945),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	require.Len(t, fs.created, 1)
	in := fs.created[0]
	assert.Equal(t, "Harold", in.Name)
	assert.Equal(t, "Grandpa", *in.Nickname)
	assert.Equal(t, 1945, *in.Born)
	assert.Equal(t, store.StatusLiving, in.Status)
}

func TestApplyPatchAddPersonSkipsExisting(t *testing.T) {
	fs := newFakePatchStore("Harold")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddPerson{Name: "harold"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, fs.created)
}

func TestApplyPatchAddPersonExactMatchOnly(t *testing.T) {
	// "Ann" is a substring of "Hannah" but a different person; only an
	// exact name match may block the add.
	fs := newFakePatchStore("Hannah")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddPerson{Name: "Ann"})
	require.NoError(t, err)
	assert.True(t, applied)
	require.Len(t, fs.created, 1)
	assert.Equal(t, "Ann", fs.created[0].Name)
}

func TestApplyPatchAddPersonEmptyName(t *testing.T) {
	fs := newFakePatchStore()
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddPerson{})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, fs.created)
}

func TestApplyPatchUpdatePerson(t *testing.T) {
	fs := newFakePatchStore("Harold")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(
		[]byte(`{"born": 1946, "nickname": "Gramps", "player": true}`), &fields))

	applied, err := ApplyPatch(context.Background(), fs, "fam-1", UpdatePerson{
		Name: "Har", Fields: fields,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	patch, ok := fs.updated["p-1"]
	require.True(t, ok)
	require.NotNil(t, patch.Born)
	assert.Equal(t, 1946, *patch.Born)
	assert.Equal(t, "Gramps", *patch.Nickname)
	assert.True(t, *patch.Player)
	assert.Nil(t, patch.Name)
	assert.Nil(t, patch.Status)
}

func TestApplyPatchUpdateUnknownPerson(t *testing.T) {
	fs := newFakePatchStore("Harold")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", UpdatePerson{
		Name: "Zelda", Fields: map[string]any{"born": 1950},
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, fs.updated)
}

func TestApplyPatchAddRelationship(t *testing.T) {
	fs := newFakePatchStore("Harold", "Billy")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddRelationship{
		Type: store.RelParentOf, FromName: "Harold", ToName: "Billy", Year: ptr(1970),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	require.Len(t, fs.rels, 1)
	rel := fs.rels[0]
	assert.Equal(t, store.RelParentOf, rel.Type)
	assert.Equal(t, "p-1", rel.From)
	assert.Equal(t, "p-2", rel.To)
	assert.Equal(t, 1970, *rel.Year)
}

func TestApplyPatchAddRelationshipInvalidType(t *testing.T) {
	fs := newFakePatchStore("Harold", "Billy")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddRelationship{
		Type: "sibling_of", FromName: "Harold", ToName: "Billy",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, fs.rels)
}

func TestApplyPatchAddRelationshipUnknownPerson(t *testing.T) {
	fs := newFakePatchStore("Harold")
	applied, err := ApplyPatch(context.Background(), fs, "fam-1", AddRelationship{
		Type: store.RelMarried, FromName: "Harold", ToName: "Nobody",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, fs.rels)
}
