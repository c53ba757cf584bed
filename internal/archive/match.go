// ABOUTME: Best-match engine mapping archived files onto existing entities
// ABOUTME: Weighted Levenshtein similarity over per-category key fields
package archive

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// MatchRule declares how one category of archived files is matched against
// existing entities.
type MatchRule struct {
	// KeyFields are compared in order; missing candidate fields are skipped.
	KeyFields []string
	// Tolerance is the minimum score in [0,1] for a match.
	Tolerance float64
	// AutoCreate imports unmatched files under their original key.
	AutoCreate bool
}

// Rules groups the matching rules by entity kind.
var Rules = map[string]MatchRule{
	"avatars":     {KeyFields: []string{"id", "name", "contactId"}, Tolerance: 0.8, AutoCreate: true},
	"backgrounds": {KeyFields: []string{"contactId", "id"}, Tolerance: 0.9, AutoCreate: true},
	"emojis":      {KeyFields: []string{"tag", "meaning"}, Tolerance: 0.95, AutoCreate: true},
	"moments":     {KeyFields: []string{"momentId", "id", "timestamp"}, Tolerance: 0.8},
}

// ruleGroupFor maps a reference category onto its rule group. Categories
// without a rule import directly under their original key.
func ruleGroupFor(category string) string {
	switch category {
	case "avatar_user", "avatar_contact":
		return "avatars"
	case "background":
		return "backgrounds"
	case "emoji":
		return "emojis"
	case "moment_image":
		return "moments"
	default:
		return ""
	}
}

// fieldWeights bias the score toward strong identifiers.
var fieldWeights = map[string]float64{
	"id":        1.0,
	"tag":       1.0,
	"momentId":  1.0,
	"contactId": 0.9,
	"name":      0.8,
	"meaning":   0.7,
	"timestamp": 0.6,
}

const defaultFieldWeight = 0.5

func weightFor(field string) float64 {
	if w, ok := fieldWeights[field]; ok {
		return w
	}
	return defaultFieldWeight
}

// similarity is 1.0 on exact match, else 1 − (edit distance / max length).
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	d := levenshtein.ComputeDistance(a, b)
	s := 1.0 - float64(d)/float64(maxLen)
	if s < 0 {
		return 0.0
	}
	return s
}

// Candidate is an existing entity an archived file can be matched to. Key
// is the reference key a match resolves to (emoji tag, contact id, ...).
type Candidate struct {
	Key    string
	Fields map[string]string
}

// incomingValue picks the incoming side of a field comparison: the
// reference metadata when it carries the field, else the reference key.
func incomingValue(field, referenceKey string, meta map[string]any) string {
	if meta != nil {
		if v, ok := meta[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return referenceKey
}

// Score computes the weighted similarity between an incoming file's
// identity and one candidate entity.
func Score(rule MatchRule, referenceKey string, meta map[string]any, cand Candidate) float64 {
	var sum, weights float64
	for _, field := range rule.KeyFields {
		cv, ok := cand.Fields[field]
		if !ok || cv == "" {
			continue
		}
		iv := incomingValue(field, referenceKey, meta)
		if iv == "" {
			continue
		}
		w := weightFor(field)
		sum += w * similarity(normalizeKey(iv), normalizeKey(cv))
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// normalizeKey folds separator differences (underscores vs spaces) before
// comparing, since archive keys flatten spaces into underscores.
func normalizeKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}

// BestMatch returns the highest-scoring candidate at or above the rule's
// tolerance, or nil.
func BestMatch(rule MatchRule, referenceKey string, meta map[string]any, cands []Candidate) (*Candidate, float64) {
	var best *Candidate
	bestScore := 0.0
	for i := range cands {
		s := Score(rule, referenceKey, meta, cands[i])
		if s > bestScore {
			best = &cands[i]
			bestScore = s
		}
	}
	if best == nil || bestScore < rule.Tolerance {
		return nil, bestScore
	}
	return best, bestScore
}
