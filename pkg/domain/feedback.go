package domain

import "time"

// Experience is clarified operator feedback about a finished run, staged to a
// remote collector.
type Experience struct {
	RunID      string    `json:"run_id"`
	Worker     string    `json:"worker"`
	Task       string    `json:"task"`
	Status     RunStatus `json:"status"`
	Steps      int       `json:"steps"`
	Rating     string    `json:"rating"`
	Summary    string    `json:"summary"`
	Suggestion string    `json:"suggestion,omitempty"`
	Raw        string    `json:"raw"`
	CreatedAt  time.Time `json:"created_at"`
}
