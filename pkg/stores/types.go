// Package stores holds the job and workflow registries behind injected
// interfaces: an in-memory implementation matching the service's
// non-durable contract and a SQLite implementation for deployments that
// want state to survive a restart.
package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a workflow id or job token is unknown.
var ErrNotFound = errors.New("record not found")

// Step is a workflow step name. Steps advance monotonically; a workflow
// never revisits an earlier step.
type Step string

const (
	StepInputVerification       Step = "InputVerification"
	StepGitSessionSetup         Step = "GitSessionSetup"
	StepGitRepositoryCreation   Step = "GitRepositoryCreation"
	StepFrameworkInitialization Step = "FrameworkInitialization"
	StepStackExecution          Step = "StackExecution"
	StepSuccess                 Step = "Success"
)

// stepOrder fixes the progression of workflow steps.
var stepOrder = map[Step]int{
	StepInputVerification:       0,
	StepGitSessionSetup:         1,
	StepGitRepositoryCreation:   2,
	StepFrameworkInitialization: 3,
	StepStackExecution:          4,
	StepSuccess:                 5,
}

// Index returns the step's position in the workflow, or -1 for an unknown
// step.
func (s Step) Index() int {
	if idx, ok := stepOrder[s]; ok {
		return idx
	}
	return -1
}

// Status is the lifecycle state of a workflow or job.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusSuccess    Status = "Success"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// WorkflowRecord tracks one project-creation workflow.
type WorkflowRecord struct {
	// ID is the registry-assigned workflow id returned to the caller.
	ID int64 `json:"id"`

	// ProjectName is the project being provisioned.
	ProjectName string `json:"projectName"`

	// TemplateName is the infrastructure template in use.
	TemplateName string `json:"templateName"`

	// Platform is the source-control platform kind, empty when the
	// request declared none.
	Platform string `json:"platform,omitempty"`

	// Status is the workflow lifecycle state.
	Status Status `json:"status"`

	// CurrentStep is the step the workflow last entered.
	CurrentStep Step `json:"currentStep"`

	// StepsCompleted lists the steps finished so far, in order.
	StepsCompleted []Step `json:"stepsCompleted"`

	// Outputs accumulates workflow outputs, repository details first and
	// infrastructure outputs merged over them.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Error carries the failure detail for failed workflows.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share registry state.
func (r *WorkflowRecord) Clone() *WorkflowRecord {
	out := *r
	out.StepsCompleted = append([]Step(nil), r.StepsCompleted...)
	if r.Outputs != nil {
		out.Outputs = make(map[string]interface{}, len(r.Outputs))
		for k, v := range r.Outputs {
			out.Outputs[k] = v
		}
	}
	return &out
}

// Job tracks one single-resource execution, addressed by an opaque token.
type Job struct {
	// Token is the registry-assigned opaque job token.
	Token string `json:"jobId"`

	// ProjectName scopes the stack the job executes.
	ProjectName string `json:"projectName"`

	// ResourceType is the resource the job provisions.
	ResourceType string `json:"resourceType"`

	// Status is the job lifecycle state.
	Status Status `json:"status"`

	// StatusCode is the HTTP-shaped result code once the job finished.
	StatusCode int `json:"statusCode,omitempty"`

	// Message carries the failure detail for failed jobs.
	Message string `json:"message,omitempty"`

	// Outputs are the stack outputs of a succeeded job.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share registry state.
func (j *Job) Clone() *Job {
	out := *j
	if j.Outputs != nil {
		out.Outputs = make(map[string]interface{}, len(j.Outputs))
		for k, v := range j.Outputs {
			out.Outputs[k] = v
		}
	}
	return &out
}

// WorkflowStore is the workflow registry the sequencer writes through.
type WorkflowStore interface {
	// CreateWorkflow stores the initial record and assigns its id.
	CreateWorkflow(ctx context.Context, record *WorkflowRecord) (int64, error)

	// GetWorkflow returns a copy of the record, ErrNotFound when unknown.
	GetWorkflow(ctx context.Context, id int64) (*WorkflowRecord, error)

	// UpdateWorkflow replaces the stored record.
	UpdateWorkflow(ctx context.Context, record *WorkflowRecord) error
}

// JobStore is the single-resource job registry.
type JobStore interface {
	// CreateJob stores the initial record and assigns its token.
	CreateJob(ctx context.Context, job *Job) (string, error)

	// GetJob returns a copy of the job, ErrNotFound when unknown.
	GetJob(ctx context.Context, token string) (*Job, error)

	// SucceedJob marks the job finished with its outputs.
	SucceedJob(ctx context.Context, token string, statusCode int, outputs map[string]interface{}) error

	// FailJob marks the job failed with its detail.
	FailJob(ctx context.Context, token string, statusCode int, message string) error
}
