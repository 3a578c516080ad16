package prompt

const evaluationPrefill = "<step_{{.StepNum}}><evaluation>"

const candidatesBlock = `{{range $i, $c := .Candidates}}<candidate_{{inc $i}}>
{{$c}}
</candidate_{{inc $i}}>
{{end}}`

const ballotInstructions = `{{if eq .Strategy "category"}}For every candidate, rate each of the following categories from 1 (worst) to {{len .Candidates}} (best): {{join .Categories ", "}}.
Answer with one element per candidate, for example:
<candidate_1>{{range .Categories}}<{{.}}>3</{{.}}>{{end}}</candidate_1>
{{else}}Name the single best and the single worst candidate by number.
Answer exactly in this form:
<best>number</best>
<worst>number</worst>
{{end}}`

var defaultTemplates = []Template{
	{
		Path: "Plan",
		System: `You are an expert programmer solving a task in small, verifiable steps.
Each step is planned, implemented as a single {{.Language}} snippet and executed.
Code from earlier steps has already run: its variables and functions still exist.`,
		User: `<task>
{{.Task}}
</task>
{{if gt .StepNum 1}}Taking into account the prior steps, plan step {{.StepNum}}.{{else}}Plan step {{.StepNum}}.{{end}}
Describe only what this step does, in a few sentences.`,
		Prefill: "<step_{{.StepNum}}><plan>",
		Stop:    []string{"</plan>"},
	},
	{
		Path: "PlanErrorFix",
		System: `You are an expert programmer solving a task in small, verifiable steps.
The previous step failed. Plan a step that repairs it.`,
		User: `<task>
{{.Task}}
</task>
The previous step produced:
<stdout>
{{.Output}}
</stdout>
<stderr>
{{.Error}}
</stderr>
Plan step {{.StepNum}} so that it fixes the error.`,
		Prefill: "<step_{{.StepNum}}><plan>",
		Stop:    []string{"</plan>"},
	},
	{
		Path:   "PlanVote",
		System: `You are a strict reviewer comparing candidate plans for step {{.StepNum}} of a task.`,
		User: `<task>
{{.Task}}
</task>
The candidate plans are:
` + candidatesBlock + ballotInstructions,
		Prefill: evaluationPrefill,
		Stop:    []string{"</evaluation>"},
	},
	{
		Path: "Propose",
		System: `You are an expert {{.Language}} programmer. Implement exactly the given plan as one snippet.
Print the results the step needs to show. Do not repeat code from earlier steps.`,
		User: `<task>
{{.Task}}
</task>
<plan>
{{.Plan}}
</plan>
Implement step {{.StepNum}}.`,
		Prefill: "<step_{{.StepNum}}><implementation>\n```{{.Language}}",
		Stop:    []string{"```"},
	},
	{
		Path:   "ProposeVote",
		System: `You are a strict reviewer comparing candidate implementations of one plan.`,
		User: `<task>
{{.Task}}
</task>
<plan>
{{.Plan}}
</plan>
The candidate implementations are:
` + candidatesBlock + ballotInstructions,
		Prefill: evaluationPrefill,
		Stop:    []string{"</evaluation>"},
	},
	{
		Path:   "ExecVote",
		System: `You are a strict reviewer verifying an executed step of a task.`,
		User: `<task>
{{.Task}}
</task>
<plan>
{{.Plan}}
</plan>
<implementation>
{{.Implementation}}
</implementation>
<stdout>
{{.Output}}
</stdout>
<stderr>
{{.Error}}
</stderr>
Is the whole task complete after this step? Did an error occur?
Answer exactly in this form:
<complete>yes or no</complete>
<error>yes or no</error>`,
		Prefill: evaluationPrefill,
		Stop:    []string{"</evaluation>"},
	},
	{
		Path: "RouteAction",
		System: `You route tasks to workers. A worker keeps the code and memory of every task it ran.
Pick the worker whose description and past tasks fit the new task best.
If none fits, leave the name empty.`,
		User: `<workers>
{{.Workers}}</workers>
<task>
{{.Task}}
</task>
Answer exactly in this form:
<name>worker name or empty</name>`,
		Prefill: "<output>",
		Stop:    []string{"</output>"},
	},
	{
		Path:   "CreateWorker",
		System: `You create new workers for tasks. A worker needs a short unique name and a one-sentence description of its specialty.`,
		User: `<task>
{{.Task}}
</task>
Existing worker names: {{join .Names ", "}}
Answer exactly in this form:
<name>lowercase_name</name>
<description>one sentence</description>`,
		Prefill: "<output>",
		Stop:    []string{"</output>"},
	},
	{
		Path:   "ClarifyFeedback",
		System: `You turn raw operator feedback about a finished task into a structured record.`,
		User: `<task>
{{.Task}}
</task>
<status>{{.Status}}</status>
<raw_feedback>
{{.Feedback}}
</raw_feedback>
Answer exactly in this form:
<rating>good, neutral or bad</rating>
<summary>one paragraph</summary>
<suggestion>what to do differently, or empty</suggestion>`,
		Prefill: "<feedback>",
		Stop:    []string{"</feedback>"},
	},
}

// Defaults returns a store holding the built-in templates.
func Defaults() *MemoryStore {
	return NewMemoryStore(defaultTemplates...)
}
