package domain

// Step is one plan -> implement -> execute -> verify cycle within a task.
// It is open from Plan entry until execution verification resolves it.
type Step struct {
	Number int `json:"number"`

	// Plan candidates and the chosen plan.
	PlanCandidates []string  `json:"plan_candidates,omitempty"`
	PlanScores     []float64 `json:"plan_scores,omitempty"`
	Plan           string    `json:"plan"`

	// Implementation candidates (fenced code blocks) and the chosen one.
	Proposals      []string  `json:"proposals,omitempty"`
	ProposalScores []float64 `json:"proposal_scores,omitempty"`
	Implementation string    `json:"implementation"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Raw ballots, kept for the transcript.
	PlanBallots     []string `json:"plan_ballots,omitempty"`
	ProposalBallots []string `json:"proposal_ballots,omitempty"`
	ExecBallots     []string `json:"exec_ballots,omitempty"`

	// CompleteRatio and ErrorRatio are the exec vote tallies (0..1).
	CompleteRatio float64 `json:"complete_ratio"`
	ErrorRatio    float64 `json:"error_ratio"`
}

// Failed reports whether the step's execution wrote to stderr.
func (s *Step) Failed() bool {
	return s.Stderr != ""
}
