package ingest

import "strings"

// aliasToCanonical maps the category spellings seen in upstream trivia
// sources onto the canonical names used for deck titles.
var aliasToCanonical = map[string]string{
	"science":               "Science & Nature",
	"science & nature":      "Science & Nature",
	"nature":                "Science & Nature",
	"animals":               "Science & Nature",
	"science - computers":   "Technology",
	"science - gadgets":     "Technology",
	"technology":            "Technology",
	"mathematics":           "Mathematics",
	"science - mathematics": "Mathematics",
	"history":               "History",
	"geography":             "Geography",
	"politics":              "Politics",
	"sports":                "Sports",
	"sport_and_leisure":     "Sports",
	"music":                 "Music",
	"musicals & theatres":   "Music",
	"literature":            "Literature",
	"books":                 "Literature",
	"arts_and_literature":   "Arts & Literature",
	"arts and literature":   "Arts & Literature",
	"art":                   "Arts & Literature",
	"movies":                "Film & TV",
	"film":                  "Film & TV",
	"film_and_tv":           "Film & TV",
	"television":            "Film & TV",
	"cartoon & animations":  "Film & TV",
	"japanese anime & manga": "Film & TV",
	"video games":           "Video Games",
	"board games":           "Board Games",
	"comics":                "Comics",
	"food & drink":          "Food & Drink",
	"food_and_drink":        "Food & Drink",
	"pop culture":           "Pop Culture",
	"celebrities":           "Pop Culture",
	"mythology":             "Mythology",
	"society_and_culture":   "Society & Culture",
	"society and culture":   "Society & Culture",
	"general_knowledge":     "General Knowledge",
	"general knowledge":     "General Knowledge",
	"vehicles":              "Vehicles",
}

// canonicalToSymbol maps canonical category names to SF Symbol icon
// names consumed by the trivia client.
var canonicalToSymbol = map[string]string{
	"Science & Nature":  "atom",
	"Technology":        "desktopcomputer",
	"Mathematics":       "number",
	"History":           "clock",
	"Geography":         "globe.americas",
	"Politics":          "building.columns",
	"Sports":            "sportscourt",
	"Music":             "music.note",
	"Literature":        "book",
	"Arts & Literature": "paintbrush",
	"Film & TV":         "film",
	"Video Games":       "gamecontroller",
	"Board Games":       "gamecontroller",
	"Comics":            "text.bubble",
	"Food & Drink":      "fork.knife",
	"Pop Culture":       "star",
	"Mythology":         "sparkles",
	"Society & Culture": "person.3",
	"General Knowledge": "questionmark.circle",
	"Vehicles":          "car",
}

// CanonicalCategories is the fixed category list the daemon draws from.
var CanonicalCategories = []string{
	"Science & Nature",
	"Technology",
	"Mathematics",
	"History",
	"Geography",
	"Politics",
	"Sports",
	"Music",
	"Literature",
	"Arts & Literature",
	"Film & TV",
	"Video Games",
	"Board Games",
	"Comics",
	"Food & Drink",
	"Pop Culture",
	"Mythology",
	"Society & Culture",
	"General Knowledge",
	"Vehicles",
}

// Canonicalize maps a raw category string to its canonical name.
// Unknown names pass through unchanged.
func Canonicalize(raw string) string {
	if canonical, ok := aliasToCanonical[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return raw
}

// SymbolFor returns the SF Symbol name for a category, canonical or
// alias. Unknown categories get the question-mark icon.
func SymbolFor(category string) string {
	if symbol, ok := canonicalToSymbol[Canonicalize(category)]; ok {
		return symbol
	}
	return "questionmark.circle"
}
