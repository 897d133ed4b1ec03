package merge

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// MatchKind describes how a placeholder resolves against dataset headers.
type MatchKind string

const (
	MatchExact      MatchKind = "exact"
	MatchNormalized MatchKind = "normalized"
	MatchComputed   MatchKind = "computed"
	MatchUnresolved MatchKind = "unresolved"
)

const maxSuggestions = 3

// FieldMatch is the reconciliation outcome for one placeholder.
type FieldMatch struct {
	Placeholder string
	Kind        MatchKind
	Header      string
	Suggestions []string
}

// Reconciliation reports how template placeholders line up with headers.
type Reconciliation struct {
	Matches []FieldMatch
}

// Unresolved returns the placeholders without a match.
func (r Reconciliation) Unresolved() []string {
	out := []string{}
	for _, match := range r.Matches {
		if match.Kind == MatchUnresolved {
			out = append(out, match.Placeholder)
		}
	}
	return out
}

// Reconcile matches placeholders against headers using the same key rules as
// the binder. Unresolved placeholders carry ranked header suggestions; the
// suggestions are advisory and never used for binding.
func Reconcile(placeholders Placeholders, headers []string, dateAliases []string) Reconciliation {
	headerSet := make(map[string]bool, len(headers))
	normalized := map[string]string{}
	for _, header := range headers {
		headerSet[header] = true
		key := Normalize(header)
		if _, ok := normalized[key]; !ok && key != "" {
			normalized[key] = header
		}
	}
	aliases := make(map[string]bool, len(dateAliases))
	for _, alias := range dateAliases {
		aliases[alias] = true
	}

	out := Reconciliation{Matches: make([]FieldMatch, 0, len(placeholders.Names))}
	for _, name := range placeholders.Names {
		match := FieldMatch{Placeholder: name}
		switch {
		case headerSet[name]:
			match.Kind = MatchExact
			match.Header = name
		case normalized[name] != "":
			match.Kind = MatchNormalized
			match.Header = normalized[name]
		case aliases[name] || IsAutoFilled(name) || placeholders.IsImage(name):
			match.Kind = MatchComputed
		default:
			match.Kind = MatchUnresolved
			match.Suggestions = suggestHeaders(name, headers)
		}
		out.Matches = append(out.Matches, match)
	}
	return out
}

func suggestHeaders(name string, headers []string) []string {
	source := Normalize(name)
	if source == "" {
		return nil
	}
	ranks := fuzzy.RankFindNormalizedFold(source, headers)
	if len(ranks) == 0 {
		// fall back to the reverse direction: header contained in placeholder
		for _, header := range headers {
			if key := Normalize(header); key != "" && fuzzy.MatchNormalizedFold(key, source) {
				ranks = append(ranks, fuzzy.Rank{Source: key, Target: header, Distance: len(source) - len(key)})
			}
		}
	}
	sort.Sort(ranks)

	out := []string{}
	seen := map[string]bool{}
	for _, rank := range ranks {
		if seen[rank.Target] {
			continue
		}
		seen[rank.Target] = true
		out = append(out, rank.Target)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
