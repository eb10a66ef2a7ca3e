// Package workflow implements the Workflow/Mode Engine: lenient
// WorkflowState parsing, per-state ThinkingMode recommendation, and the
// per-chain stuck-cycle tracker.
package workflow

import (
	"strings"
)

// State is the operational mode attached to ingest.
type State string

const (
	Conversation State = "Conversation"
	Debug        State = "Debug"
	Build        State = "Build"
	Stuck        State = "Stuck"
	Review       State = "Review"
)

// Mode is a cognitive rotation within a workflow state.
type Mode string

const (
	FirstPrinciples Mode = "FirstPrinciples"
	Socratic        Mode = "Socratic"
	Systems         Mode = "Systems"
	Ooda            Mode = "Ooda"
	RootCause       Mode = "RootCause"
	Swot            Mode = "Swot"
)

// CycleOrder is the fixed rotation order used on Stuck ingests.
var CycleOrder = []Mode{FirstPrinciples, Socratic, Systems, Ooda, RootCause}

// recommendedModes lists, for each state, the fixed ordered list of
// ThinkingMode values a caller might want to see.
var recommendedModes = map[State][]Mode{
	Conversation: {FirstPrinciples, Systems, Swot},
	Debug:        {RootCause, Ooda, Socratic},
	Build:        {},
	Stuck:        {FirstPrinciples, Socratic, Systems, Ooda, RootCause},
	Review:       {Socratic, Systems, FirstPrinciples},
}

// RecommendedModes returns the fixed mode list for state.
func RecommendedModes(s State) []Mode {
	return recommendedModes[s]
}

// synonym pairs a recognized raw word with the state it maps to. Order is
// significant: it is the fixed tie-break order for the prefix-match
// fallback in ParseState, so results are deterministic across runs.
type synonym struct {
	word  string
	state State
}

var synonymList = []synonym{
	{"conversation", Conversation},
	{"chat", Conversation},
	{"debug", Debug},
	{"debugging", Debug},
	{"build", Build},
	{"stuck", Stuck},
	{"blocked", Stuck},
	{"review", Review},
}

var synonyms = func() map[string]State {
	m := make(map[string]State, len(synonymList))
	for _, s := range synonymList {
		m[s.word] = s.state
	}
	return m
}()

// ParseState leniently parses raw into a State: normalize case and
// punctuation, check the synonym table, try short-prefix hints, then fall
// back to a Levenshtein distance <= 2 match; default Conversation. The
// prefix-match and Levenshtein fallbacks walk synonymList in its fixed
// order rather than a map, so ambiguous input (e.g. "b", a prefix of both
// "build" and "blocked") always resolves to the same state.
func ParseState(raw string) State {
	normalized := normalize(raw)
	if normalized == "" {
		return Conversation
	}
	if s, ok := synonyms[normalized]; ok {
		return s
	}

	for _, s := range synonymList {
		if strings.HasPrefix(s.word, normalized) || strings.HasPrefix(normalized, s.word) {
			return s.state
		}
	}

	best := Conversation
	bestDist := 3
	for _, s := range synonymList {
		d := levenshtein(normalized, s.word)
		if d < bestDist {
			bestDist = d
			best = s.state
		}
	}
	if bestDist <= 2 {
		return best
	}
	return Conversation
}

func normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
