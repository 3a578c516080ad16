package tot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/executor"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/vote"
)

// run is the state of one task while the worker drives it.
type run struct {
	cp      *domain.Checkpoint
	step    *domain.Step
	closed  []domain.Step
	ballots []vote.Ballot
}

func (r *run) lastClosed() domain.Step {
	if len(r.closed) == 0 {
		return domain.Step{}
	}
	return r.closed[len(r.closed)-1]
}

// handle runs the work of state path and returns the trigger to fire next.
func (w *Worker) handle(ctx context.Context, r *run, path string) (string, error) {
	var (
		trigger string
		op      string
		err     error
	)
	switch path {
	case StatePlan:
		op = "generate plans"
		trigger, err = w.plan(ctx, r, path, w.vars(r))
	case StatePlanErrorFix:
		op = "generate fix plans"
		prev := r.lastClosed()
		vars := w.vars(r)
		vars["Output"] = prev.Stdout
		vars["Error"] = prev.Stderr
		trigger, err = w.plan(ctx, r, path, vars)
	case StatePlanVote:
		op = "vote on plans"
		trigger, err = StateSumPlanVotes, w.ballot(ctx, r, path, r.step.PlanCandidates, w.planVote, &r.step.PlanBallots)
	case StateSumPlanVotes:
		op = "reduce plan votes"
		r.step.PlanScores, err = w.reduce(r, w.planVote, len(r.step.PlanCandidates))
		trigger = StateChoosePlan
	case StateChoosePlan:
		op = "choose plan"
		r.step.Plan, err = choose(r.step.PlanCandidates, r.step.PlanScores)
		trigger = StatePropose
	case StatePropose:
		op = "generate implementations"
		trigger, err = w.propose(ctx, r, path)
	case StateProposeVote:
		op = "vote on implementations"
		trigger, err = StateSumProposeVotes, w.ballot(ctx, r, path, r.step.Proposals, w.proposeVote, &r.step.ProposalBallots)
	case StateSumProposeVotes:
		op = "reduce implementation votes"
		r.step.ProposalScores, err = w.reduce(r, w.proposeVote, len(r.step.Proposals))
		trigger = StateChooseProposition
	case StateChooseProposition:
		op = "choose implementation"
		r.step.Implementation, err = choose(r.step.Proposals, r.step.ProposalScores)
		trigger = StateExec
	case StateExec:
		op = "execute step"
		trigger, err = w.execute(ctx, r)
	case StateExecVote:
		op = "verify step"
		err = w.verify(ctx, r, path)
		trigger = StateSumExecVote
	case StateSumExecVote:
		op = "tally verification"
		trigger, err = w.tally(ctx, r)
	default:
		op = "dispatch"
		err = fmt.Errorf("no handler for state %q", path)
	}
	if err != nil {
		return "", &StateError{Path: path, Op: op, Err: err}
	}
	return trigger, nil
}

func (w *Worker) vars(r *run) prompt.Vars {
	return prompt.Vars{
		"Task":     r.cp.Task,
		"StepNum":  r.step.Number,
		"Language": w.language,
	}
}

// plan serves Plan and PlanErrorFix: a single unique candidate skips voting.
func (w *Worker) plan(ctx context.Context, r *run, path string, vars prompt.Vars) (string, error) {
	texts, err := w.generate(ctx, path, vars, w.cfg.Plans)
	if err != nil {
		return "", err
	}
	r.step.PlanCandidates = vote.Dedup(texts)
	if len(r.step.PlanCandidates) == 1 {
		r.step.Plan = r.step.PlanCandidates[0]
		return StatePropose, nil
	}
	return StatePlanVote, nil
}

func (w *Worker) propose(ctx context.Context, r *run, path string) (string, error) {
	vars := w.vars(r)
	vars["Plan"] = strings.TrimSpace(r.step.Plan)
	texts, err := w.generate(ctx, path, vars, w.cfg.Proposals)
	if err != nil {
		return "", err
	}
	fenced := make([]string, len(texts))
	for i, t := range texts {
		fenced[i] = parse.Fence(w.language, strings.TrimLeft(t, "\r\n"))
	}
	r.step.Proposals = vote.Dedup(fenced)
	if len(r.step.Proposals) == 1 {
		r.step.Implementation = r.step.Proposals[0]
		return StateExec, nil
	}
	return StateProposeVote, nil
}

func (w *Worker) execute(ctx context.Context, r *run) (string, error) {
	lang, code, ok := parse.ExtractCode(r.step.Implementation)
	if !ok {
		return "", ErrUnparsableImplementation
	}
	n := r.step.Number

	w.logger.Info("executing step", "run_id", r.cp.RunID, "step", n, "language", lang)
	w.logger.Debug("step code", "step", n, "code", strings.TrimSpace(code))

	err := w.exec.WriteStepAs(lang, code, n)
	switch {
	case errors.Is(err, executor.ErrUnsupportedLanguage):
		r.step.Stdout, r.step.Stderr = "", err.Error()
	case err != nil:
		return "", err
	default:
		r.step.Stdout, r.step.Stderr, err = w.exec.ExecuteStep(ctx, n)
		if err != nil {
			return "", err
		}
		// A cancelled runtime reports into stderr; that is not a step failure.
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	w.logger.Debug("step output", "step", n, "stdout", r.step.Stdout, "stderr", r.step.Stderr)

	if r.step.Failed() {
		if err := w.closeStep(ctx, r); err != nil {
			return "", err
		}
		return StatePlanErrorFix, nil
	}
	return StateExecVote, nil
}

func (w *Worker) verify(ctx context.Context, r *run, path string) error {
	vars := w.vars(r)
	vars["Plan"] = strings.TrimSpace(r.step.Plan)
	vars["Implementation"] = r.step.Implementation
	vars["Output"] = r.step.Stdout
	vars["Error"] = r.step.Stderr

	texts, err := w.generate(ctx, path, vars, w.cfg.Voters)
	if err != nil {
		return err
	}
	ballots, err := w.parseBallots(ctx, texts, nil)
	if err != nil {
		return err
	}
	r.ballots = ballots
	r.step.ExecBallots = texts
	return nil
}

// tally closes the step before branching on the verdict.
func (w *Worker) tally(ctx context.Context, r *run) (string, error) {
	t := vote.TallyExec(r.ballots)
	r.ballots = nil
	r.step.CompleteRatio = t.CompleteRatio()
	r.step.ErrorRatio = t.ErrorRatio()
	verdict := t.Verdict()

	w.logger.Info("step verified", "run_id", r.cp.RunID, "step", r.step.Number,
		"complete", r.step.CompleteRatio, "error", r.step.ErrorRatio, "verdict", verdict)

	if err := w.closeStep(ctx, r); err != nil {
		return "", err
	}
	switch verdict {
	case vote.VerdictFix:
		return StatePlanErrorFix, nil
	case vote.VerdictDone:
		return StateDone, nil
	default:
		return StatePlan, nil
	}
}

// closeStep folds the open step into memory and opens the next one.
func (w *Worker) closeStep(ctx context.Context, r *run) error {
	step := r.step
	w.mu.Lock()
	w.memory = append(w.memory,
		domain.UserMessage(fmt.Sprintf("Plan and implement step %d:", step.Number)),
		domain.AssistantMessage(transcript(step)),
	)
	w.mu.Unlock()
	r.closed = append(r.closed, *step)

	if w.stepLog != nil {
		if err := w.stepLog.AppendStep(context.WithoutCancel(ctx), r.cp.RunID, step); err != nil {
			return fmt.Errorf("failed to log step %d: %w", step.Number, err)
		}
	}
	if w.hooks.OnStepClosed != nil {
		w.hooks.OnStepClosed(ctx, &domain.StepEvent{
			EventBase: domain.EventBase{Timestamp: nowUTC(), Type: domain.EventStepClosed, RunID: r.cp.RunID},
			Step:      step,
		})
	}

	r.step = &domain.Step{Number: step.Number + 1}
	return nil
}

func transcript(s *domain.Step) string {
	return fmt.Sprintf(`<step_%[1]d>
<plan>%[2]s</plan>
<implementation>
%[3]s
</implementation>
<stdout>
%[4]s
</stdout>
<stderr>
%[5]s
</stderr>
</step_%[1]d>`, s.Number, strings.TrimSpace(s.Plan), s.Implementation, s.Stdout, s.Stderr)
}

func choose(candidates []string, scores vote.Scores) (string, error) {
	i := vote.Choose(scores)
	if i < 0 || i >= len(candidates) {
		return "", fmt.Errorf("no score for %d candidates", len(candidates))
	}
	return candidates[i], nil
}
