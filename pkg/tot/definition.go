package tot

import (
	_ "embed"

	"github.com/aretw0/canopy/pkg/hsm"
)

// State names of the workflow. Triggers share the name of their destination.
const (
	StatePlan              = "Plan"
	StatePlanVote          = "PlanVote"
	StateSumPlanVotes      = "SumPlanVotes"
	StateChoosePlan        = "ChoosePlan"
	StatePropose           = "Propose"
	StateProposeVote       = "ProposeVote"
	StateSumProposeVotes   = "SumProposeVotes"
	StateChooseProposition = "ChooseProposition"
	StateExec              = "Exec"
	StateExecVote          = "ExecVote"
	StateSumExecVote       = "SumExecVote"
	StatePlanErrorFix      = "PlanErrorFix"
	StateDone              = "Done"

	// TriggerRestart moves a worker from any state back to Plan.
	TriggerRestart = "Restart"
)

// TemplatePaths lists the prompt templates a worker renders.
var TemplatePaths = []string{
	StatePlan, StatePlanErrorFix, StatePlanVote, StatePropose, StateProposeVote, StateExecVote,
}

//go:embed tot.yaml
var definitionYAML []byte

// Definition returns the workflow's state machine definition.
func Definition() hsm.Definition {
	def, err := hsm.ParseDefinition(definitionYAML)
	if err != nil {
		panic("tot: embedded definition: " + err.Error())
	}
	return def
}
