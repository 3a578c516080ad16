package tot_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/adapters/file"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/llm/llmtest"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/tot"
	"github.com/aretw0/canopy/pkg/vote"
)

const (
	complete   = "<complete>yes</complete><error>no</error>"
	incomplete = "<complete>no</complete><error>no</error>"
	broken     = "<complete>yes</complete><error>yes</error>"
)

func planFor(step int) llmtest.Matcher {
	return llmtest.Prefill(fmt.Sprintf("<step_%d><plan>", step))
}

func proposeFor(step int) llmtest.Matcher {
	return llmtest.Prefill(fmt.Sprintf("<step_%d><implementation>", step))
}

func verifyFor(step int) llmtest.Matcher {
	return llmtest.All(llmtest.Prefill(fmt.Sprintf("<step_%d><evaluation>", step)), llmtest.User("Is the whole task complete"))
}

var (
	planVote    = llmtest.User("The candidate plans are")
	proposeVote = llmtest.User("The candidate implementations are")
	fixPlan     = llmtest.User("so that it fixes the error")
)

// position finds the 1-based presented position of the candidate containing needle.
func position(user, needle string) int {
	for i := 1; ; i++ {
		open := fmt.Sprintf("<candidate_%d>", i)
		start := strings.Index(user, open)
		if start < 0 {
			return 0
		}
		end := strings.Index(user, fmt.Sprintf("</candidate_%d>", i))
		if end > start && strings.Contains(user[start:end], needle) {
			return i
		}
	}
}

func bestWorst(best, worst string) llmtest.Reply {
	return func(req llm.Request) (string, error) {
		user := req.LastUser()
		return fmt.Sprintf("<best>%d</best><worst>%d</worst>", position(user, best), position(user, worst)), nil
	}
}

func rate(good string) llmtest.Reply {
	return func(req llm.Request) (string, error) {
		user := req.LastUser()
		n := 0
		for strings.Contains(user, fmt.Sprintf("</candidate_%d>", n+1)) {
			n++
		}
		var sb strings.Builder
		for i := 1; i <= n; i++ {
			score := 1
			if position(user, good) == i {
				score = n
			}
			fmt.Fprintf(&sb, "<candidate_%d>", i)
			for _, c := range vote.DefaultCategories {
				fmt.Fprintf(&sb, "<%s>%d</%s>", c, score, c)
			}
			fmt.Fprintf(&sb, "</candidate_%d>", i)
		}
		return sb.String(), nil
	}
}

func newWorker(t *testing.T, gen llm.Generator, opts ...tot.Option) *tot.Worker {
	t.Helper()
	d := llm.NewDispatcher(gen, llm.WithConcurrency(4))
	base := []tot.Option{
		tot.WithWorkDir(t.TempDir()),
		tot.WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	w, err := tot.New(context.Background(), "coder", "writes Lua", d, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestDefinition(t *testing.T) {
	def := tot.Definition()
	assert.Equal(t, tot.StatePlan, def.Initial)
	assert.Len(t, def.Paths(), 13)
}

func TestWorker_HelloSkipsVotes(t *testing.T) {
	gen := llmtest.New().
		On(planFor(1), "Print hello.").
		On(proposeFor(1), "\nprint(\"hello\")\n").
		On(verifyFor(1), complete)

	store := memory.NewStore()
	logs := file.NewStepLog(t.TempDir())
	artifacts := t.TempDir()

	var (
		mu      sync.Mutex
		closed  int
		entered []string
		ended   domain.RunStatus
	)
	hooks := domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			mu.Lock()
			defer mu.Unlock()
			entered = append(entered, e.Path)
		},
		OnStepClosed: func(context.Context, *domain.StepEvent) { closed++ },
		OnRunEnd:     func(_ context.Context, e *domain.RunEvent) { ended = e.Status },
	}

	w := newWorker(t, gen,
		tot.WithCheckpointStore(store),
		tot.WithStepLog(logs),
		tot.WithArtifactsDir(artifacts),
		tot.WithLifecycleHooks(hooks),
	)

	res, err := w.Run(context.Background(), "print hello")
	require.NoError(t, err)

	assert.Equal(t, domain.RunSucceeded, res.Status)
	require.Len(t, res.Steps, 1)
	step := res.Steps[0]
	assert.Equal(t, "Print hello.", step.Plan)
	assert.Equal(t, "```lua\nprint(\"hello\")\n```", step.Implementation)
	assert.Equal(t, "hello\n", step.Stdout)
	assert.Empty(t, step.Stderr)
	assert.Equal(t, 1.0, step.CompleteRatio)

	assert.Equal(t, 0, gen.CountMatching(planVote))
	assert.Equal(t, 0, gen.CountMatching(proposeVote))
	assert.Equal(t, 3, gen.CountMatching(planFor(1)))
	assert.Equal(t, 3, gen.CountMatching(verifyFor(1)))

	assert.Equal(t, tot.StateDone, w.Machine().Current().Path())
	assert.Equal(t, []string{"Plan", "Propose", "Exec", "ExecVote", "SumExecVote"}, w.Machine().History().Paths())
	assert.Equal(t, []string{"Propose", "Exec", "ExecVote", "SumExecVote", "Done"}, entered)
	assert.Equal(t, 1, closed)
	assert.Equal(t, domain.RunSucceeded, ended)

	memory := w.Memory()
	require.Len(t, memory, 2)
	assert.Equal(t, "Plan and implement step 1:", memory[0].Content)
	assert.Contains(t, memory[1].Content, "<step_1>\n<plan>Print hello.</plan>")
	assert.Contains(t, memory[1].Content, "<stdout>\nhello\n\n</stdout>")

	cp, err := store.Load(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, cp.Status)
	assert.Equal(t, tot.StateDone, cp.StatePath)
	assert.Equal(t, 2, cp.StepNum)

	assert.Equal(t, filepath.Join(artifacts, "coder", "run-1"), res.Artifact)
	code, err := os.ReadFile(filepath.Join(res.Artifact, "prior_code.lua"))
	require.NoError(t, err)
	assert.Equal(t, "-- print hello\n-- <step_1>\nprint(\"hello\")\n-- </step_1>\n\n", string(code))

	transcript, err := os.ReadFile(logs.Path(res.RunID))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "## Step 1")
	assert.Contains(t, string(transcript), "## Result: succeeded")
}

func TestWorker_VotesOnDistinctCandidates(t *testing.T) {
	gen := llmtest.New().
		OnFunc(planVote, bestWorst("Print hello.", "primes")).
		OnFunc(proposeVote, bestWorst(`"hello"`, `"hi"`)).
		On(planFor(1), "Print hello.", "Print hello.", "Compute primes.").
		On(proposeFor(1), "\nprint(\"hello\")\n", "\nprint(\"hi\")\n").
		On(verifyFor(1), complete)

	w := newWorker(t, gen)

	res, err := w.Run(context.Background(), "print hello")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)

	step := res.Steps[0]
	assert.Len(t, step.PlanCandidates, 2)
	assert.Equal(t, "Print hello.", step.Plan)
	assert.Len(t, step.PlanBallots, 3)
	assert.Len(t, step.Proposals, 2)
	assert.Equal(t, "```lua\nprint(\"hello\")\n```", step.Implementation)
	assert.Equal(t, "hello\n", step.Stdout)

	i := indexOf(step.PlanCandidates, "Print hello.")
	assert.Equal(t, 3.0, step.PlanScores[i])
	assert.Equal(t, -3.0, step.PlanScores[1-i])

	assert.Equal(t, 3, gen.CountMatching(planVote))
	assert.Equal(t, 3, gen.CountMatching(proposeVote))
	assert.Equal(t, 3, gen.CountMatching(llmtest.All(proposeFor(1), llmtest.User("Print hello."))))
	assert.Equal(t,
		[]string{"Plan", "PlanVote", "SumPlanVotes", "ChoosePlan", "Propose", "ProposeVote", "SumProposeVotes", "ChooseProposition", "Exec", "ExecVote", "SumExecVote"},
		w.Machine().History().Paths())
}

func TestWorker_CategoryStrategy(t *testing.T) {
	gen := llmtest.New().
		OnFunc(planVote, rate("Print hello.")).
		OnFunc(proposeVote, rate(`"hello"`)).
		On(planFor(1), "Compute primes.", "Print hello.").
		On(proposeFor(1), "\nprint(\"hi\")\n", "\nprint(\"hello\")\n").
		On(verifyFor(1), complete)

	cfg := tot.DefaultConfig()
	cfg.Strategy = "category"
	w := newWorker(t, gen, tot.WithConfig(cfg))

	res, err := w.Run(context.Background(), "print hello")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Print hello.", res.Steps[0].Plan)
	assert.Equal(t, "hello\n", res.Steps[0].Stdout)

	assert.Equal(t, 3, gen.CountMatching(llmtest.All(planVote, llmtest.User("specificity"))))
	assert.Equal(t, 0, gen.CountMatching(llmtest.All(proposeVote, llmtest.User("specificity"))))
}

func TestWorker_ExecutionErrorPlansFix(t *testing.T) {
	gen := llmtest.New().
		On(fixPlan, "Print a fixed greeting.").
		On(planFor(1), "Raise an error.").
		On(proposeFor(1), "\nerror(\"boom\")\n").
		On(proposeFor(2), "\nprint(\"fixed\")\n").
		On(verifyFor(2), complete)

	w := newWorker(t, gen)

	res, err := w.Run(context.Background(), "print something")
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)

	assert.Contains(t, res.Steps[0].Stderr, "boom")
	assert.Empty(t, res.Steps[0].ExecBallots)
	assert.Equal(t, "Print a fixed greeting.", res.Steps[1].Plan)
	assert.Equal(t, "fixed\n", res.Steps[1].Stdout)

	assert.Equal(t,
		[]string{"Plan", "Propose", "Exec", "PlanErrorFix", "Propose", "Exec", "ExecVote", "SumExecVote"},
		w.Machine().History().Paths())
	assert.Equal(t, 0, gen.CountMatching(verifyFor(1)))
	assert.Equal(t, 3, gen.CountMatching(llmtest.All(fixPlan, llmtest.User("boom"))))
	assert.Len(t, w.Memory(), 4)
}

func TestWorker_ErrorVerdictTakesPrecedence(t *testing.T) {
	gen := llmtest.New().
		On(fixPlan, "Fix it.").
		On(planFor(1), "Print hello.").
		On(proposeFor(1), "\nprint(\"hello\")\n").
		On(proposeFor(2), "\nprint(\"hello again\")\n").
		On(verifyFor(1), broken).
		On(verifyFor(2), complete)

	w := newWorker(t, gen)

	res, err := w.Run(context.Background(), "print hello")
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 1.0, res.Steps[0].ErrorRatio)
	assert.Equal(t, 1.0, res.Steps[0].CompleteRatio)

	snaps := w.Machine().History().Snapshots()
	require.Len(t, snaps, 10)
	assert.Equal(t, "SumExecVote", snaps[4].Path)
	assert.Equal(t, tot.StatePlanErrorFix, snaps[4].Trigger)
}

func TestWorker_IncompleteLoopsToPlan(t *testing.T) {
	gen := llmtest.New().
		On(planFor(1), "Define greet.").
		On(planFor(2), "Call greet.").
		On(proposeFor(1), "\nfunction greet() return \"hello\" end\n").
		On(proposeFor(2), "\nprint(greet())\n").
		On(verifyFor(1), incomplete).
		On(verifyFor(2), complete)

	w := newWorker(t, gen)

	res, err := w.Run(context.Background(), "define and call greet")
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "hello\n", res.Steps[1].Stdout)
	assert.Equal(t, 3, gen.CountMatching(llmtest.All(planFor(2), llmtest.User("Taking into account the prior steps"))))

	for _, req := range gen.Calls() {
		if planFor(2)(req) {
			assert.Len(t, req.Messages, 4)
		}
	}
}

func TestWorker_StepLimit(t *testing.T) {
	gen := llmtest.New().
		On(llmtest.Prefill("<plan>"), "Print a number.").
		On(llmtest.Prefill("<implementation>"), "\nprint(1)\n").
		On(llmtest.User("Is the whole task complete"), incomplete)

	cfg := tot.DefaultConfig()
	cfg.MaxSteps = 2
	store := memory.NewStore()
	w := newWorker(t, gen, tot.WithConfig(cfg), tot.WithCheckpointStore(store))

	res, err := w.Run(context.Background(), "never finishes")
	require.Error(t, err)
	assert.ErrorIs(t, err, tot.ErrStepLimit)

	var se *tot.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, tot.StatePlan, se.Path)

	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Len(t, res.Steps, 2)

	cp, err := store.Load(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, cp.Status)
	assert.Contains(t, cp.Error, "step limit")
}

func TestWorker_NegativeStepLimitIsUnbounded(t *testing.T) {
	gen := llmtest.New().
		On(llmtest.Prefill("<plan>"), "Print a number.").
		On(llmtest.Prefill("<implementation>"), "\nprint(1)\n").
		On(verifyFor(3), complete).
		On(llmtest.User("Is the whole task complete"), incomplete)

	cfg := tot.DefaultConfig()
	cfg.MaxSteps = -1
	require.NoError(t, cfg.Validate())
	w := newWorker(t, gen, tot.WithConfig(cfg))

	res, err := w.Run(context.Background(), "three steps")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, res.Status)
	assert.Len(t, res.Steps, 3)
}

func TestWorker_InterruptMidPlan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := llmtest.New().
		OnFunc(planFor(1), func(llm.Request) (string, error) {
			cancel()
			return "Print hello.", nil
		}).
		On(proposeFor(1), "\nprint(\"hello\")\n").
		On(verifyFor(1), complete)

	store := memory.NewStore()
	w := newWorker(t, gen, tot.WithCheckpointStore(store))

	res, err := w.Run(ctx, "print hello")
	assert.ErrorIs(t, err, tot.ErrInterrupted)
	require.NotNil(t, res)
	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Empty(t, res.Steps)

	// The in-flight batch completed before the abort was honored.
	assert.Equal(t, 3, gen.CountMatching(planFor(1)))
	assert.Equal(t, 0, gen.CountMatching(proposeFor(1)))
	assert.NotEqual(t, tot.StateDone, w.Machine().Current().Path())
	assert.False(t, w.Machine().History().Visited(tot.StateDone))

	cp, err := store.Load(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, cp.Status)
}

func TestWorker_InterruptMidExec(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := llmtest.New().
		On(planFor(1), "Spin.").
		OnFunc(proposeFor(1), func(llm.Request) (string, error) {
			time.AfterFunc(50*time.Millisecond, cancel)
			return "\nwhile true do end\n", nil
		}).
		On(verifyFor(1), complete)

	w := newWorker(t, gen)

	res, err := w.Run(ctx, "spin forever")
	assert.ErrorIs(t, err, tot.ErrInterrupted)
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
	assert.Empty(t, w.Memory(), "an interrupted execution is not remembered as a failed step")
	assert.Equal(t, 0, gen.CountMatching(fixPlan))
}

func TestWorker_RestartKeepsExecutionContext(t *testing.T) {
	gen := llmtest.New().
		On(llmtest.All(planFor(1), llmtest.User("set x")), "Set x.").
		On(llmtest.All(planFor(1), llmtest.User("print x")), "Print x plus one.").
		On(llmtest.All(proposeFor(1), llmtest.User("set x")), "\nx = 41\n").
		On(llmtest.All(proposeFor(1), llmtest.User("print x")), "\nprint(x + 1)\n").
		On(verifyFor(1), complete)

	artifacts := t.TempDir()
	w := newWorker(t, gen, tot.WithArtifactsDir(artifacts))
	ctx := context.Background()

	first, err := w.Run(ctx, "set x to 41")
	require.NoError(t, err)
	second, err := w.Run(ctx, "print x plus one")
	require.NoError(t, err)

	require.Len(t, second.Steps, 1)
	assert.Equal(t, "42\n", second.Steps[0].Stdout)

	assert.Equal(t, filepath.Join(artifacts, "coder", "run-1"), first.Artifact)
	assert.Equal(t, filepath.Join(artifacts, "coder", "run-2"), second.Artifact)

	var restarted bool
	for _, s := range w.Machine().History().Snapshots() {
		if s.Path == tot.StateDone && s.Trigger == tot.TriggerRestart {
			restarted = true
		}
	}
	assert.True(t, restarted)

	assert.Equal(t, []string{"set x to 41", "print x plus one"}, w.Info().Tasks)
	assert.Len(t, w.Memory(), 4)
	for _, req := range gen.Calls() {
		if llmtest.All(planFor(1), llmtest.User("print x"))(req) {
			assert.Len(t, req.Messages, 4)
		}
	}
}

type stubFeedback struct {
	got []domain.Step
}

func (s *stubFeedback) Collect(_ context.Context, cp *domain.Checkpoint, steps []domain.Step) (*domain.Experience, error) {
	s.got = steps
	return &domain.Experience{RunID: cp.RunID, Rating: "good", Summary: "Worked first time."}, nil
}

func TestWorker_Feedback(t *testing.T) {
	gen := llmtest.New().
		On(planFor(1), "Print hello.").
		On(proposeFor(1), "\nprint(\"hello\")\n").
		On(verifyFor(1), complete)

	fb := &stubFeedback{}
	logs := file.NewStepLog(t.TempDir())
	w := newWorker(t, gen, tot.WithFeedback(fb), tot.WithStepLog(logs))

	res, err := w.Run(context.Background(), "print hello")
	require.NoError(t, err)
	require.NotNil(t, res.Experience)
	assert.Equal(t, "good", res.Experience.Rating)
	assert.Len(t, fb.got, 1)

	transcript, err := os.ReadFile(logs.Path(res.RunID))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "Worked first time.")
}

func TestWorker_GenerationFailureIsLocated(t *testing.T) {
	gen := llmtest.New().On(planFor(1), "Print hello.")

	w := newWorker(t, gen)

	res, err := w.Run(context.Background(), "print hello")
	var se *tot.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, tot.StatePropose, se.Path)
	assert.Equal(t, "generate implementations", se.Op)
	assert.Equal(t, domain.RunFailed, res.Status)
}

func TestNew_MissingTemplate(t *testing.T) {
	d := llm.NewDispatcher(llmtest.New())
	_, err := tot.New(context.Background(), "coder", "", d,
		tot.WithTemplates(prompt.NewMemoryStore()),
		tot.WithWorkDir(t.TempDir()),
	)
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestNew_InvalidConfig(t *testing.T) {
	d := llm.NewDispatcher(llmtest.New())

	cfg := tot.DefaultConfig()
	cfg.Voters = 0
	_, err := tot.New(context.Background(), "coder", "", d, tot.WithConfig(cfg), tot.WithWorkDir(t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrConfig)

	cfg = tot.DefaultConfig()
	cfg.Language = "cobol"
	_, err = tot.New(context.Background(), "coder", "", d, tot.WithConfig(cfg), tot.WithWorkDir(t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrConfig)

	cfg = tot.DefaultConfig()
	cfg.Strategy = "borda"
	_, err = tot.New(context.Background(), "coder", "", d, tot.WithConfig(cfg), tot.WithWorkDir(t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestWorker_RunAfterClose(t *testing.T) {
	w := newWorker(t, llmtest.New())
	require.NoError(t, w.Close())
	_, err := w.Run(context.Background(), "anything")
	assert.ErrorIs(t, err, tot.ErrClosed)
}

func indexOf(items []string, s string) int {
	for i, it := range items {
		if it == s {
			return i
		}
	}
	return -1
}

func TestWorker_RunIDFromContext(t *testing.T) {
	gen := llmtest.New().
		On(planFor(1), "Print hello.").
		On(proposeFor(1), "\nprint(\"hello\")\n").
		On(verifyFor(1), complete)
	store := memory.NewStore()
	w := newWorker(t, gen, tot.WithCheckpointStore(store))

	ctx := domain.ContextWithRunID(context.Background(), "run-fixed")
	res, err := w.Run(ctx, "print hello")
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", res.RunID)

	cp, err := store.Load(context.Background(), "run-fixed")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, cp.Status)
}
