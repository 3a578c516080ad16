package tot

import (
	"context"
	"maps"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/vote"
)

// request builds a completion request on top of the worker's memory.
func (w *Worker) request(turn prompt.Turn) llm.Request {
	messages := make([]domain.Message, 0, len(w.memory)+2)
	messages = append(messages, w.memory...)
	messages = append(messages, domain.UserMessage(turn.User))
	if turn.Prefill != "" {
		messages = append(messages, domain.AssistantMessage(turn.Prefill))
	}
	return llm.Request{
		System:      turn.System,
		Messages:    messages,
		Stop:        turn.Stop,
		Temperature: w.cfg.Temperature,
	}
}

// generate renders path once and fans out n completions.
func (w *Worker) generate(ctx context.Context, path string, vars prompt.Vars, n int) ([]string, error) {
	turn, err := w.renderer.Render(ctx, path, vars)
	if err != nil {
		return nil, err
	}
	return w.dispatcher.Generate(ctx, w.request(turn), n)
}

// ballot asks every voter to judge candidates, each under its own shuffle.
func (w *Worker) ballot(ctx context.Context, r *run, path string, candidates []string, strategy vote.Strategy, raw *[]string) error {
	categories := []string{}
	if c, ok := strategy.(vote.Category); ok {
		categories = c.Categories()
	}

	perms := make([]vote.Permutation, w.cfg.Voters)
	reqs := make([]llm.Request, w.cfg.Voters)
	for i := range reqs {
		perms[i] = vote.Shuffle(len(candidates), w.rng)

		vars := maps.Clone(w.vars(r))
		vars["Plan"] = r.step.Plan
		vars["Candidates"] = perms[i].Apply(candidates)
		vars["Strategy"] = strategy.Name()
		vars["Categories"] = categories

		turn, err := w.renderer.Render(ctx, path, vars)
		if err != nil {
			return err
		}
		reqs[i] = w.request(turn)
	}

	texts, err := w.dispatcher.Batch(ctx, reqs)
	if err != nil {
		return err
	}
	ballots, err := w.parseBallots(ctx, texts, perms)
	if err != nil {
		return err
	}
	r.ballots = ballots
	*raw = texts
	return nil
}

// parseBallots decodes voter responses, repairing malformed ones.
func (w *Worker) parseBallots(ctx context.Context, texts []string, perms []vote.Permutation) ([]vote.Ballot, error) {
	ballots := make([]vote.Ballot, len(texts))
	for i, text := range texts {
		fields, err := w.repairer.Parse(ctx, text)
		if err != nil {
			return nil, err
		}
		ballots[i] = vote.Ballot{Voter: i, Fields: fields, Raw: text}
		if perms != nil {
			ballots[i].Permutation = perms[i]
		}
	}
	return ballots, nil
}

// reduce scores the ballots of the last vote.
func (w *Worker) reduce(r *run, strategy vote.Strategy, n int) (vote.Scores, error) {
	scores, err := strategy.Reduce(n, r.ballots)
	if err != nil {
		return nil, err
	}
	r.ballots = nil
	return scores, nil
}
