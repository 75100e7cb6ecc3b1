// Package rank orders application records for a query. Ranking is a pure
// function over a record snapshot: fuzzy subsequence relevance combined
// with a bounded usage weight, so trained muscle memory wins among
// near-equal matches without ever drowning out a clearly better one.
package rank

import (
	"math"
	"sort"

	"github.com/sahilm/fuzzy"

	"github.com/appdex/appdexd/internal/apps"
)

// Usage weight shape: each launch is worth less than the last and the
// total bonus is capped, so no usage count can outrank a textual match
// that is better by more than maxUsageBonus.
const (
	usageBonusStep = 8.0
	maxUsageBonus  = 40.0
)

// Match is one ranked result.
type Match struct {
	App   apps.App
	Score int
}

type byName []apps.App

func (s byName) String(i int) string { return s[i].Name }
func (s byName) Len() int            { return len(s) }

// Rank scores candidates against query and returns at most limit results,
// best first. An empty query returns the most-used records, so frequent
// applications surface before the user types anything. Repeated identical
// queries over the same snapshot return the same order.
func Rank(candidates []apps.App, query string, limit int) []Match {
	if limit <= 0 {
		return nil
	}
	if query == "" {
		return mostUsed(candidates, limit)
	}

	found := fuzzy.FindFrom(query, byName(candidates))

	matches := make([]Match, 0, len(found))
	for _, m := range found {
		app := candidates[m.Index]
		matches = append(matches, Match{
			App:   app,
			Score: m.Score + usageBonus(app.UsageCount),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].App.Name != matches[j].App.Name {
			return matches[i].App.Name < matches[j].App.Name
		}
		return matches[i].App.ID < matches[j].App.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func mostUsed(candidates []apps.App, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, app := range candidates {
		matches = append(matches, Match{App: app})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].App, matches[j].App
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if !a.LastUsed.Equal(b.LastUsed) {
			return a.LastUsed.After(b.LastUsed)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func usageBonus(count uint64) int {
	if count == 0 {
		return 0
	}
	bonus := usageBonusStep * math.Log2(1+float64(count))
	return int(math.Min(bonus, maxUsageBonus))
}
