/*
Package tot implements the tree-of-thought workflow.

A Worker solves a task in steps. Each step is planned, voted on, implemented,
voted on again, executed and verified before the worker decides to plan the
next step, repair the last one or finish:

	Plan ──> PlanVote ──> SumPlanVotes ──> ChoosePlan ──┐
	  │                                                 v
	  └──────────────(one unique plan)─────────────> Propose ──> ProposeVote ──> ...
	                                                    │
	                                                    └──(one unique)──> Exec ──> ExecVote ──> SumExecVote

The states live on an hsm.Machine. Every fan-out goes through an
llm.Dispatcher and is joined before the next transition. Code runs in a
persistent executor owned by the worker.
*/
package tot
