package vote

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/canopy/pkg/parse"
)

// ErrNoValidBallots is returned when every ballot of a round was rejected.
var ErrNoValidBallots = errors.New("no valid ballots")

// Ballot is one voter's parsed response for a single round.
type Ballot struct {
	Voter       int
	Permutation Permutation
	Fields      map[string]any
	Raw         string
}

// Scores holds one score per original candidate index.
type Scores []float64

// BallotError explains why a ballot was discarded.
type BallotError struct {
	Voter  int
	Reason string
}

func (e *BallotError) Error() string {
	return fmt.Sprintf("ballot from voter %d rejected: %s", e.Voter, e.Reason)
}

// Strategy reduces ballots over n candidates into scores.
//
// Invalid ballots are skipped. Reduce only fails when no ballot survives; the
// returned error then joins every BallotError.
type Strategy interface {
	Name() string
	Reduce(n int, ballots []Ballot) (Scores, error)
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "pairwise":
		return Pairwise{}, nil
	case "category":
		return Category{}, nil
	default:
		return nil, fmt.Errorf("unknown vote strategy %q", name)
	}
}

// PairwiseBallot is the forced best/worst judgment. Positions are 1-based as presented.
type PairwiseBallot struct {
	Best  int `mapstructure:"best"`
	Worst int `mapstructure:"worst"`
}

// Pairwise scores +1 for a ballot's best candidate and -1 for its worst.
type Pairwise struct{}

func (Pairwise) Name() string { return "pairwise" }

func (Pairwise) Reduce(n int, ballots []Ballot) (Scores, error) {
	scores := make(Scores, n)
	var errs []error
	valid := 0

	for _, b := range ballots {
		var pb PairwiseBallot
		if err := decode(b.Fields, &pb); err != nil {
			errs = append(errs, &BallotError{Voter: b.Voter, Reason: err.Error()})
			continue
		}
		best, err := resolve(b, pb.Best, n)
		if err != nil {
			errs = append(errs, &BallotError{Voter: b.Voter, Reason: "best: " + err.Error()})
			continue
		}
		worst, err := resolve(b, pb.Worst, n)
		if err != nil {
			errs = append(errs, &BallotError{Voter: b.Voter, Reason: "worst: " + err.Error()})
			continue
		}
		scores[best]++
		scores[worst]--
		valid++
	}

	if valid == 0 && len(ballots) > 0 {
		return nil, errors.Join(append([]error{ErrNoValidBallots}, errs...)...)
	}
	return scores, nil
}

// DefaultCategories are the rating dimensions of the Category strategy.
var DefaultCategories = []string{"correctness", "elegance", "understandability", "specificity", "overall"}

// Category averages absolute 1..N ratings per category across ballots; a
// candidate's score is the mean of its category averages.
//
// Each ballot rates every presented position under "candidate_<pos>", e.g.
//
//	<candidate_1><correctness><score>4</score></correctness>...</candidate_1>
type Category struct {
	// Omit lists categories to ignore (e.g. "specificity" for implementations).
	Omit []string
}

func (Category) Name() string { return "category" }

// Categories returns the categories this strategy scores.
func (c Category) Categories() []string {
	out := make([]string, 0, len(DefaultCategories))
	for _, cat := range DefaultCategories {
		omitted := false
		for _, o := range c.Omit {
			if o == cat {
				omitted = true
				break
			}
		}
		if !omitted {
			out = append(out, cat)
		}
	}
	return out
}

func (c Category) Reduce(n int, ballots []Ballot) (Scores, error) {
	cats := c.Categories()
	sums := make([][]float64, n)
	for i := range sums {
		sums[i] = make([]float64, len(cats))
	}
	counts := make([]int, n)
	var errs []error
	valid := 0

	for _, b := range ballots {
		if len(b.Permutation) != n || !b.Permutation.Valid() {
			errs = append(errs, &BallotError{Voter: b.Voter, Reason: "permutation does not cover the candidates"})
			continue
		}
		ratings := make([][]float64, n)
		ok := true
		for pos := 0; pos < n && ok; pos++ {
			raw, found := b.Fields[fmt.Sprintf("candidate_%d", pos+1)]
			if !found {
				errs = append(errs, &BallotError{Voter: b.Voter, Reason: fmt.Sprintf("missing candidate_%d", pos+1)})
				ok = false
				break
			}
			fields, isMap := raw.(map[string]any)
			if !isMap {
				errs = append(errs, &BallotError{Voter: b.Voter, Reason: fmt.Sprintf("candidate_%d is not structured", pos+1)})
				ok = false
				break
			}
			row := make([]float64, len(cats))
			for ci, cat := range cats {
				v, err := rating(fields[cat], n)
				if err != nil {
					errs = append(errs, &BallotError{Voter: b.Voter, Reason: fmt.Sprintf("candidate_%d %s: %v", pos+1, cat, err)})
					ok = false
					break
				}
				row[ci] = v
			}
			ratings[b.Permutation[pos]] = row
		}
		if !ok {
			continue
		}
		for orig, row := range ratings {
			for ci, v := range row {
				sums[orig][ci] += v
			}
			counts[orig]++
		}
		valid++
	}

	if valid == 0 && len(ballots) > 0 {
		return nil, errors.Join(append([]error{ErrNoValidBallots}, errs...)...)
	}

	scores := make(Scores, n)
	for i := range scores {
		if counts[i] == 0 || len(cats) == 0 {
			continue
		}
		total := 0.0
		for _, s := range sums[i] {
			total += s / float64(counts[i])
		}
		scores[i] = total / float64(len(cats))
	}
	return scores, nil
}

// rating accepts either a bare value or a {score: value} element on the
// 1..n scale.
func rating(v any, n int) (float64, error) {
	if m, ok := v.(map[string]any); ok {
		v = m["score"]
	}
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, errors.New("missing score")
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported score %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f > float64(n) {
		return 0, fmt.Errorf("score %v outside 1..%d", f, n)
	}
	return f, nil
}

func resolve(b Ballot, oneBased, n int) (int, error) {
	if len(b.Permutation) != n {
		return -1, fmt.Errorf("permutation covers %d of %d candidates", len(b.Permutation), n)
	}
	return b.Permutation.Original(oneBased - 1)
}

func decode(fields map[string]any, out any) error {
	if err := parse.Decode(fields, out); err != nil {
		return fmt.Errorf("decode ballot: %w", err)
	}
	return nil
}
