// Package family computes kinship relations over a family tree and turns
// them into generated decks of flashcards and trivia. The graph is pure
// in-memory; persistence stays behind narrow store interfaces.
package family

import (
	"github.com/billdonner/card-engine/pkg/store"
)

// Person is the engine's view of a family member. Zero values mean the
// detail is unknown.
type Person struct {
	ID          string
	Name        string
	Nickname    string
	MaidenName  string
	Born        int
	Status      string
	Player      bool
	Placeholder bool
}

// Relationship is one edge of the kinship graph. For parent_of, From is
// the parent and To the child.
type Relationship struct {
	ID   string
	Type string
	From string
	To   string
}

// NamedRelation is a resolved relationship from the player's
// perspective: the person, a label like "maternal grandparent", the
// generation offset, and a 1..4 difficulty tier.
type NamedRelation struct {
	Person     Person
	Label      string
	Generation int
	Difficulty int
}

// Graph is an in-memory family graph. Adjacency maps hold identifiers
// only; people are looked up by id on emission.
type Graph struct {
	people   map[string]Person
	parents  map[string][]string
	children map[string][]string
	spouses  map[string][]string
}

// NewGraph indexes people and relationships into adjacency maps.
// Spousal edges cover both married and divorced couples.
func NewGraph(people []Person, relationships []Relationship) *Graph {
	g := &Graph{
		people:   make(map[string]Person, len(people)),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		spouses:  make(map[string][]string),
	}
	for _, p := range people {
		g.people[p.ID] = p
	}
	for _, r := range relationships {
		switch r.Type {
		case store.RelParentOf:
			g.children[r.From] = append(g.children[r.From], r.To)
			g.parents[r.To] = append(g.parents[r.To], r.From)
		case store.RelMarried, store.RelDivorced:
			g.spouses[r.From] = append(g.spouses[r.From], r.To)
			g.spouses[r.To] = append(g.spouses[r.To], r.From)
		}
	}
	return g
}

// sideLabel attributes an ancestor branch to "paternal" or "maternal".
// Parents-list insertion order is the signal: first parent is paternal,
// second maternal. Single-parent trees carry no side.
func (g *Graph) sideLabel(ancestorID, playerID string) string {
	parents := g.parents[playerID]
	if len(parents) < 2 {
		return ""
	}
	for i, pid := range parents {
		if g.isAncestorOf(ancestorID, pid, 0) {
			if i == 1 {
				return "maternal"
			}
			return "paternal"
		}
	}
	return ""
}

// isAncestorOf walks parent edges up to depth 10, which also guards
// against malformed cyclic data.
func (g *Graph) isAncestorOf(ancestorID, personID string, depth int) bool {
	if depth > 10 {
		return false
	}
	if ancestorID == personID {
		return true
	}
	for _, parent := range g.parents[personID] {
		if g.isAncestorOf(ancestorID, parent, depth+1) {
			return true
		}
	}
	return false
}

func sided(side, label string) string {
	if side == "" {
		return label
	}
	return side + " " + label
}

type sidedID struct {
	id   string
	side string
}

// ComputeRelations resolves every named relationship from the player's
// perspective. Each person is emitted at most once, in a fixed
// traversal order: parents, siblings, grandparents, great-grandparents,
// aunts/uncles (and their spouses), great-aunts/uncles, cousins, and
// finally the player's own spouses.
func (g *Graph) ComputeRelations(playerID string) []NamedRelation {
	var results []NamedRelation
	if _, ok := g.people[playerID]; !ok {
		return results
	}

	seen := map[string]bool{playerID: true}
	emit := func(p Person, label string, generation, difficulty int) {
		seen[p.ID] = true
		results = append(results, NamedRelation{
			Person:     p,
			Label:      label,
			Generation: generation,
			Difficulty: difficulty,
		})
	}

	parents := g.parents[playerID]
	for _, pid := range parents {
		if p, ok := g.people[pid]; ok {
			emit(p, "parent", 1, 1)
		}
	}

	// Siblings: any other child of a parent, once.
	var siblings []string
	sibSeen := make(map[string]bool)
	for _, pid := range parents {
		for _, childID := range g.children[pid] {
			if childID != playerID && !sibSeen[childID] {
				sibSeen[childID] = true
				siblings = append(siblings, childID)
			}
		}
	}
	for _, sid := range siblings {
		if s, ok := g.people[sid]; ok {
			emit(s, "sibling", 0, 1)
		}
	}

	// Grandparents carry the branch side down to deeper ancestors.
	var grandparents []sidedID
	for _, pid := range parents {
		side := g.sideLabel(pid, playerID)
		for _, gpID := range g.parents[pid] {
			grandparents = append(grandparents, sidedID{id: gpID, side: side})
		}
	}
	for _, gp := range grandparents {
		p, ok := g.people[gp.id]
		if !ok || seen[gp.id] {
			continue
		}
		emit(p, sided(gp.side, "grandparent"), 2, 2)
	}

	for _, gp := range grandparents {
		for _, ggpID := range g.parents[gp.id] {
			p, ok := g.people[ggpID]
			if !ok || seen[ggpID] {
				continue
			}
			emit(p, sided(gp.side, "great-grandparent"), 3, 3)
		}
	}

	// Aunts and uncles: children of grandparents who are not the
	// player's parents.
	parentSet := make(map[string]bool, len(parents))
	for _, pid := range parents {
		parentSet[pid] = true
	}
	var auntsUncles []string
	auSeen := make(map[string]bool)
	for _, pid := range parents {
		for _, gpID := range g.parents[pid] {
			for _, auID := range g.children[gpID] {
				if !parentSet[auID] && auID != playerID && !auSeen[auID] {
					auSeen[auID] = true
					auntsUncles = append(auntsUncles, auID)
				}
			}
		}
	}
	for _, auID := range auntsUncles {
		au, ok := g.people[auID]
		if !ok || seen[auID] {
			continue
		}
		emit(au, "aunt/uncle", 1, 2)

		// Their spouses are aunts/uncles by marriage.
		for _, spID := range g.spouses[auID] {
			if sp, ok := g.people[spID]; ok && !seen[spID] {
				emit(sp, "aunt/uncle (by marriage)", 1, 2)
			}
		}
	}

	// Great-aunts/uncles: other children of great-grandparents.
	for _, gp := range grandparents {
		for _, ggpID := range g.parents[gp.id] {
			for _, gauID := range g.children[ggpID] {
				if gauID == gp.id || seen[gauID] {
					continue
				}
				if gau, ok := g.people[gauID]; ok {
					emit(gau, sided(gp.side, "great-aunt/uncle"), 2, 3)
				}
			}
		}
	}

	// Cousins: children of blood aunts/uncles.
	for _, auID := range auntsUncles {
		for _, cousinID := range g.children[auID] {
			if cousin, ok := g.people[cousinID]; ok && !seen[cousinID] {
				emit(cousin, "cousin", 0, 3)
			}
		}
	}

	for _, spID := range g.spouses[playerID] {
		if sp, ok := g.people[spID]; ok && !seen[spID] {
			emit(sp, "spouse", 0, 1)
		}
	}

	return results
}
