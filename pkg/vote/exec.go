package vote

import "strings"

// ExecBallot is one voter's verdict on an executed step.
type ExecBallot struct {
	Complete string `mapstructure:"complete"`
	Error    string `mapstructure:"error"`
}

// Verdict is the branch chosen after execution voting.
type Verdict int

const (
	// VerdictContinue plans a fresh step.
	VerdictContinue Verdict = iota
	// VerdictDone finishes the task.
	VerdictDone
	// VerdictFix plans a repair of the previous step.
	VerdictFix
)

func (v Verdict) String() string {
	switch v {
	case VerdictDone:
		return "done"
	case VerdictFix:
		return "fix"
	default:
		return "continue"
	}
}

// Tally counts yes answers to "is the step complete" and "did an error occur".
type Tally struct {
	Voters   int
	Complete int
	Errors   int
}

// TallyExec counts the yes answers of the given ballots. Ballots that fail to
// decode still count as voters that said no.
func TallyExec(ballots []Ballot) Tally {
	t := Tally{Voters: len(ballots)}
	for _, b := range ballots {
		var eb ExecBallot
		if err := decode(b.Fields, &eb); err != nil {
			continue
		}
		if yes(eb.Complete) {
			t.Complete++
		}
		if yes(eb.Error) {
			t.Errors++
		}
	}
	return t
}

// CompleteRatio is the fraction of voters that answered "complete: yes".
func (t Tally) CompleteRatio() float64 {
	if t.Voters == 0 {
		return 0
	}
	return float64(t.Complete) / float64(t.Voters)
}

// ErrorRatio is the fraction of voters that answered "error: yes".
func (t Tally) ErrorRatio() float64 {
	if t.Voters == 0 {
		return 0
	}
	return float64(t.Errors) / float64(t.Voters)
}

// Verdict applies the majority rules. An error majority takes priority over a
// completion majority: a step that reports an error is never accepted as done.
func (t Tally) Verdict() Verdict {
	switch {
	case t.ErrorRatio() > 0.5:
		return VerdictFix
	case t.CompleteRatio() > 0.5:
		return VerdictDone
	default:
		return VerdictContinue
	}
}

func yes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}
