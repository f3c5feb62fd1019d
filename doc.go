// Package cardengine is a unified content backend serving the Flasherz
// flashcard app and the Alities trivia app from a single relational store
// of decks and cards.
//
// The service bundles three subsystems:
//
//   - An ingestion daemon that periodically asks an LLM for trivia
//     questions, deduplicates them against all prior content, and inserts
//     the survivors with per-cycle audit rows.
//   - A two-stage deduplication filter (exact signature + Jaccard
//     similarity) with a bounded cache that warm-starts from the store.
//   - A family relationship engine that computes named kinship relations
//     from a chosen player's perspective and materialises them into
//     flashcard and trivia decks.
//
// # Quick Start
//
// Install:
//
//	go install github.com/billdonner/card-engine/cmd/card-engine@latest
//
// Apply the schema and start the server:
//
//	card-engine migrate
//	card-engine serve
//
// Configuration comes from CE_-prefixed environment variables (loaded from
// .env.local/.env when present) or an optional YAML file:
//
//	card-engine serve --config card-engine.yaml
//
// # Packages
//
//	import (
//	    "github.com/billdonner/card-engine/pkg/store"
//	    "github.com/billdonner/card-engine/pkg/ingest"
//	    "github.com/billdonner/card-engine/pkg/family"
//	)
package cardengine
