package mules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leofalp/mule/core/agent"
)

// Kinds of built-in behavior, as named in pipeline files.
const (
	KindThinker      = "thinker"
	KindCritic       = "critic"
	KindResearch     = "research"
	KindResearchTeam = "research_team"
	KindClassifier   = "classifier"
)

var registry = map[string]agent.Body{
	KindThinker:      Thinker,
	KindCritic:       Critic,
	KindResearch:     Research,
	KindResearchTeam: ResearchTeam,
	KindClassifier:   Classifier,
}

// Lookup returns the body registered for kind. Kinds are case-insensitive
// and an empty kind means KindThinker.
func Lookup(kind string) (agent.Body, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = KindThinker
	}
	body, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("mules: unknown kind %q (expected one of %s)", kind, strings.Join(Kinds(), ", "))
	}
	return body, nil
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
