package curator

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/scoring"
)

// DefaultKey is the partition key of the catch-all group. It never collides
// with a named group because named tags are non-empty.
const DefaultKey = ""

// Partition maps group keys to candidate lists in enumeration order.
type Partition struct {
	// Keys lists group keys in output order; DefaultKey is always last.
	Keys    []string
	Members map[string][]models.Metadata
}

// PartitionByTag groups metas by exact equality of their method tag.
//
// With named tags, each named tag gets its own group (in the given order)
// and every other record, including untagged ones, lands in the default
// group. With no named tags, every distinct non-empty tag becomes a group in
// first-seen order. Untagged records always land in the default group.
func PartitionByTag(metas []models.Metadata, named []string) Partition {
	p := Partition{Members: make(map[string][]models.Metadata)}
	known := make(map[string]bool, len(named))
	for _, tag := range named {
		if tag == DefaultKey || known[tag] {
			continue
		}
		known[tag] = true
		p.Keys = append(p.Keys, tag)
	}
	distinct := len(p.Keys) == 0

	for _, m := range metas {
		key := DefaultKey
		switch {
		case m.Method == "":
		case known[m.Method]:
			key = m.Method
		case distinct:
			known[m.Method] = true
			p.Keys = append(p.Keys, m.Method)
			key = m.Method
		}
		p.Members[key] = append(p.Members[key], m)
	}
	p.Keys = append(p.Keys, DefaultKey)
	return p
}

// Labels assigns a display label to every key. Named keys label themselves;
// the catch-all takes defaultLabel, suffixed with -2, -3, ... when a tag
// already uses that label.
func Labels(keys []string, defaultLabel string) map[string]string {
	out := make(map[string]string, len(keys))
	taken := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != DefaultKey {
			out[k] = k
			taken[k] = true
		}
	}
	label := defaultLabel
	for n := 2; taken[label]; n++ {
		label = fmt.Sprintf("%s-%d", defaultLabel, n)
	}
	out[DefaultKey] = label
	return out
}

// Candidate is a scored metadata view.
type Candidate struct {
	Meta  models.Metadata
	Score float64
}

// Rank scores metas with policy, drops unselectable scores and sorts the
// rest by descending score. The sort is stable: equal scores keep their
// enumeration order.
func Rank(metas []models.Metadata, policy scoring.Policy) []Candidate {
	out := make([]Candidate, 0, len(metas))
	for _, m := range metas {
		s := policy.Score(m.Spectrum, m.KYDim)
		if !policy.Selectable(s) {
			continue
		}
		out = append(out, Candidate{Meta: m, Score: s})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// Top returns at most n leading candidates.
func Top(ranked []Candidate, n int) []Candidate {
	if n < 0 {
		n = 0
	}
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
