package flow

// ResultType is the kind of response a flow step produces.
type ResultType string

const (
	ResultForm         ResultType = "form"
	ResultProgress     ResultType = "progress"
	ResultProgressDone ResultType = "progress_done"
	ResultCreateEntry  ResultType = "create_entry"
	ResultAbort        ResultType = "abort"
)

const (
	SourceUser   = "user"
	SourceImport = "import"
)

// Field describes one input of a form step.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// Result is returned to the caller after every step.
type Result struct {
	Type           ResultType        `json:"type"`
	FlowID         string            `json:"flow_id"`
	Domain         string            `json:"handler"`
	StepID         string            `json:"step_id,omitempty"`
	Schema         []Field           `json:"data_schema,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"`
	ProgressAction string            `json:"progress_action,omitempty"`
	NextStepID     string            `json:"next_step_id,omitempty"`
	Title          string            `json:"title,omitempty"`
	Data           map[string]any    `json:"data,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	EntryID        string            `json:"entry_id,omitempty"`
}

func ShowForm(stepID string, schema []Field, errors map[string]string) Result {
	return Result{Type: ResultForm, StepID: stepID, Schema: schema, Errors: errors}
}

func ShowProgress(stepID, action string) Result {
	return Result{Type: ResultProgress, StepID: stepID, ProgressAction: action}
}

func ShowProgressDone(nextStepID string) Result {
	return Result{Type: ResultProgressDone, NextStepID: nextStepID}
}

func CreateEntry(title string, data map[string]any) Result {
	return Result{Type: ResultCreateEntry, Title: title, Data: data}
}

func Abort(reason string) Result {
	return Result{Type: ResultAbort, Reason: reason}
}
