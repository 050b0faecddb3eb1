package discovery

import (
	"sort"
	"strings"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
)

// Score weights. The quality tier dominates; the bonuses only separate
// candidates within a tier, so a heuristic hit can never outrank an exact
// one on path shape alone.
const (
	scoreExact     = 100
	scorePathMatch = 75
	scorePartial   = 50
	scoreHeuristic = 25

	bonusCanonicalSuffix = 15 // folder ends in <api>/<version>
	bonusDisplayName     = 10
	bonusAPISegment      = 5
	bonusFamilyTokens    = 5
	bonusHasToken        = 3
	bonusHasVersion      = 1
)

// Ranker orders validated candidates by confidence.
type Ranker struct {
	Logger   *zerolog.Logger
	Manifest *core.Manifest
}

func NewRanker(logger *zerolog.Logger, m *core.Manifest) *Ranker {
	return &Ranker{Logger: logger, Manifest: m}
}

// Score computes the confidence score for a single candidate.
func (r *Ranker) Score(c core.Candidate) int {
	var score int
	switch c.Quality {
	case core.QualityExact:
		score = scoreExact
	case core.QualityPathMatch:
		score = scorePathMatch
	case core.QualityPartial:
		score = scorePartial
	default:
		score = scoreHeuristic
	}

	key := core.PathKey(c.Folder)
	if strings.HasSuffix(key, "/"+r.Manifest.APIMarker+"/"+r.Manifest.VersionMarker) {
		score += bonusCanonicalSuffix
	}
	if strings.Contains(key, r.Manifest.DisplayName) {
		score += bonusDisplayName
	}
	if strings.Contains(key, r.Manifest.APIMarker) {
		score += bonusAPISegment
	}
	if len(r.Manifest.FamilyTokens) > 0 {
		all := true
		for _, token := range r.Manifest.FamilyTokens {
			if !strings.Contains(key, token) {
				all = false
				break
			}
		}
		if all {
			score += bonusFamilyTokens
		}
	}
	if c.Token != "" {
		score += bonusHasToken
	}
	if c.Version != "" {
		score += bonusHasVersion
	}
	return score
}

// Rank returns the candidates ordered best-first. The order is total:
// score descending, then primary modification time descending, then folder
// path ascending, so equal inputs always rank identically.
func (r *Ranker) Rank(cands []core.Candidate) []core.Candidate {
	type scored struct {
		cand  core.Candidate
		score int
	}
	list := make([]scored, 0, len(cands))
	for _, c := range cands {
		list = append(list, scored{cand: c, score: r.Score(c)})
	}

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.cand.LastModified.Equal(b.cand.LastModified) {
			return a.cand.LastModified.After(b.cand.LastModified)
		}
		return a.cand.Folder < b.cand.Folder
	})

	out := make([]core.Candidate, len(list))
	for i, s := range list {
		out[i] = s.cand
		r.Logger.Debug().
			Str("folder", s.cand.Folder).
			Str("quality", string(s.cand.Quality)).
			Int("score", s.score).
			Msg("candidate ranked")
	}
	return out
}

// AutoSelect returns the winner only when the ranking is unambiguous: a
// lone candidate, or a top score strictly above the runner-up. Ties produce
// an AmbiguousSelectionError listing the tied group, so the engine never
// guesses silently between equals.
func (r *Ranker) AutoSelect(ranked []core.Candidate) (*core.Candidate, error) {
	switch len(ranked) {
	case 0:
		return nil, core.ErrNoCandidate
	case 1:
		return &ranked[0], nil
	}

	top := r.Score(ranked[0])
	if top > r.Score(ranked[1]) {
		return &ranked[0], nil
	}

	tied := []core.Candidate{ranked[0]}
	for i := 1; i < len(ranked) && r.Score(ranked[i]) == top; i++ {
		tied = append(tied, ranked[i])
	}
	return nil, &core.AmbiguousSelectionError{Candidates: tied}
}
