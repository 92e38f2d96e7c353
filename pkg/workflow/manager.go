// Package workflow sequences the project-creation steps: input
// verification, platform session setup, repository creation, framework
// scaffolding and stack execution, with compensating cleanup on failure.
package workflow

import (
	"context"
	"fmt"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/gitrepo"
	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/scaffold"
	"github.com/forgeplane/forgeplane/pkg/stack"
	"github.com/forgeplane/forgeplane/pkg/stores"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// StackExecutor runs one stack end to end. *stack.Runner implements it;
// tests inject fakes.
type StackExecutor interface {
	Execute(ctx context.Context, req stack.Request) stack.Result
}

// ServiceFactory builds a source-control adapter for a platform kind from
// resolved credentials. The default factory wires the real adapters; tests
// substitute fakes so no HTTP leaves the process.
type ServiceFactory func(ctx context.Context, platformKind string, creds map[string]string) (gitrepo.Service, error)

// DefaultServiceFactory builds the real GitHub and GitLab adapters.
func DefaultServiceFactory(logger *telemetry.Logger, metrics *telemetry.Metrics) ServiceFactory {
	return func(ctx context.Context, platformKind string, creds map[string]string) (gitrepo.Service, error) {
		switch platformKind {
		case provision.PlatformGitHub:
			return gitrepo.NewGitHubService(ctx, creds[CredGitHubToken], creds[CredGitHubOrganization], logger, metrics), nil
		case provision.PlatformGitLab:
			return gitrepo.NewGitLabService(creds[CredGitLabToken], creds[CredGitLabBaseURL], logger, metrics)
		default:
			return nil, provision.NewValidationError(fmt.Sprintf("Unsupported platform type: %s", platformKind))
		}
	}
}

// compensation is one queued rollback action.
type compensation struct {
	name string
	run  func(ctx context.Context) error
}

// Manager drives project-creation workflows and single-resource jobs.
type Manager struct {
	cfg       *config.Configs
	workflows stores.WorkflowStore
	jobs      stores.JobStore
	executor  StackExecutor
	factory   ServiceFactory
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
}

// NewManager wires a workflow manager. Metrics and events may be nil.
func NewManager(cfg *config.Configs, workflows stores.WorkflowStore, jobs stores.JobStore, executor StackExecutor, factory ServiceFactory, logger *telemetry.Logger, metrics *telemetry.Metrics, events *telemetry.EventPublisher) *Manager {
	return &Manager{
		cfg:       cfg,
		workflows: workflows,
		jobs:      jobs,
		executor:  executor,
		factory:   factory,
		log:       logger.NewComponentLogger("workflow"),
		metrics:   metrics,
		events:    events,
	}
}

// Submit validates and admits a project request, returning the workflow id
// immediately. The sequence runs on its own goroutine with a context
// detached from the admission request.
func (m *Manager) Submit(ctx context.Context, req *provision.ProjectRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	record := &stores.WorkflowRecord{
		ProjectName:  req.ProjectName,
		TemplateName: req.TemplateName,
		Status:       stores.StatusInProgress,
		CurrentStep:  stores.StepInputVerification,
	}
	if req.Platform != nil {
		record.Platform = req.Platform.Kind()
	}
	id, err := m.workflows.CreateWorkflow(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("admitting workflow: %w", err)
	}

	go m.Execute(context.Background(), id, req)
	return id, nil
}

// Status returns the workflow record for polling.
func (m *Manager) Status(ctx context.Context, id int64) (*stores.WorkflowRecord, error) {
	return m.workflows.GetWorkflow(ctx, id)
}

// Execute runs the full sequence for an admitted workflow. Submit calls it
// asynchronously; tests call it directly.
func (m *Manager) Execute(ctx context.Context, id int64, req *provision.ProjectRequest) {
	log := m.log.WithRequestID(id).WithProject(req.ProjectName)
	timer := telemetry.NewTimer()

	platform := ""
	if req.Platform != nil {
		platform = req.Platform.Kind()
	}
	if m.metrics != nil {
		m.metrics.RecordWorkflowStarted(platform)
	}
	if m.events != nil {
		_ = m.events.PublishWorkflowStarted(id, req.ProjectName, platform)
	}

	var compensations []compensation
	fail := func(step stores.Step, err error) {
		log.WithStep(string(step)).WithError(err).Error("workflow failed")
		m.compensate(ctx, compensations, log)
		m.finish(ctx, id, stores.StatusFailed, step, err.Error(), nil, timer)
	}

	// A step that cannot be recorded does not run. The workflow fails and
	// rolls back so the polled record never trails what actually happened.
	advance := func(step stores.Step) bool {
		if err := m.advance(ctx, id, step); err != nil {
			fail(step, fmt.Errorf("recording step %s: %w", step, err))
			return false
		}
		return true
	}

	// Input verification
	if !advance(stores.StepInputVerification) {
		return
	}
	if err := req.Validate(); err != nil {
		fail(stores.StepInputVerification, err)
		return
	}

	outputs := map[string]interface{}{}
	var service gitrepo.Service
	creds := map[string]string{}

	if req.Platform != nil {
		// Session setup: credentials resolved and the adapter built
		// before any network call.
		if !advance(stores.StepGitSessionSetup) {
			return
		}
		resolved, err := ResolveCredentials(m.cfg, platform)
		if err != nil {
			fail(stores.StepGitSessionSetup, err)
			return
		}
		creds = resolved
		service, err = m.factory(ctx, platform, creds)
		if err != nil {
			fail(stores.StepGitSessionSetup, err)
			return
		}

		// Repository creation
		if !advance(stores.StepGitRepositoryCreation) {
			return
		}
		handle, err := service.ResolveOrCreateRepository(ctx, gitrepo.CreateOptions{
			Name:        req.ProjectName,
			Description: fmt.Sprintf("Provisioned from the %s template", req.TemplateName),
		})
		if err != nil {
			fail(stores.StepGitRepositoryCreation, err)
			return
		}
		outputs["gitRepositoryUrl"] = handle.URL
		outputs["gitRepositoryName"] = handle.Name
		if m.events != nil {
			_ = m.events.PublishRepositoryCreated(id, req.ProjectName, handle.URL)
		}

		// An empty repository is rolled back on later failure. The
		// compensation is retired once frameworks are pushed: from then
		// on the repository carries work worth keeping.
		compensations = append(compensations, compensation{
			name: "delete repository",
			run:  service.DeleteRepository,
		})

		// Framework initialization
		if !advance(stores.StepFrameworkInitialization) {
			return
		}
		frameworks := scaffold.FrameworksFromParameters(req.Parameters)
		if err := service.InitializeFrameworks(ctx, frameworks, req.ProjectName); err != nil {
			fail(stores.StepFrameworkInitialization, err)
			return
		}
		if len(frameworks) > 0 {
			compensations = compensations[:len(compensations)-1]
		}
	}

	// Stack execution
	if !advance(stores.StepStackExecution) {
		return
	}
	params := provision.FlattenParameters(req.Parameters)
	for key, value := range creds {
		params[key] = value
	}
	params["Name"] = req.ProjectName

	result := m.executor.Execute(ctx, stack.Request{
		Project:      req.ProjectName,
		ResourceType: req.TemplateName,
		Config:       params,
		Pusher:       service,
	})
	if result.StatusCode != 200 {
		// The runner already destroyed its own partial resources; the
		// queued compensations cover the earlier steps.
		fail(stores.StepStackExecution, provision.NewStackExecutionError(result.Message, nil))
		return
	}
	for key, value := range result.Outputs {
		outputs[key] = value
	}
	if m.events != nil {
		_ = m.events.PublishStackApplied(req.ProjectName, result.Name, timer.Duration())
	}

	m.finish(ctx, id, stores.StatusSuccess, stores.StepSuccess, "", outputs, timer)
	log.Info("workflow succeeded")
}

// advance moves the workflow to the next step, recording the previous step
// as completed. Steps only move forward.
func (m *Manager) advance(ctx context.Context, id int64, step stores.Step) error {
	record, err := m.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if record.CurrentStep != step && record.CurrentStep.Index() >= 0 {
		if step.Index() <= record.CurrentStep.Index() {
			return fmt.Errorf("step %s cannot follow %s", step, record.CurrentStep)
		}
		record.StepsCompleted = append(record.StepsCompleted, record.CurrentStep)
	}
	record.CurrentStep = step
	return m.workflows.UpdateWorkflow(ctx, record)
}

// finish writes the terminal record state.
func (m *Manager) finish(ctx context.Context, id int64, status stores.Status, step stores.Step, errMsg string, outputs map[string]interface{}, timer *telemetry.Timer) {
	record, err := m.workflows.GetWorkflow(ctx, id)
	if err != nil {
		m.log.WithRequestID(id).WithError(err).Error("failed to load workflow for completion")
		return
	}
	if status == stores.StatusSuccess && record.CurrentStep != step {
		record.StepsCompleted = append(record.StepsCompleted, record.CurrentStep)
	}
	record.Status = status
	record.CurrentStep = step
	record.Error = errMsg
	if outputs != nil {
		if record.Outputs == nil {
			record.Outputs = map[string]interface{}{}
		}
		for key, value := range outputs {
			record.Outputs[key] = value
		}
	}
	if err := m.workflows.UpdateWorkflow(ctx, record); err != nil {
		m.log.WithRequestID(id).WithError(err).Error("failed to finalize workflow record")
	}
	if m.metrics != nil {
		m.metrics.RecordWorkflowCompleted(string(status), timer.Duration())
	}
	if m.events != nil {
		_ = m.events.PublishWorkflowCompleted(id, record.ProjectName, string(status), timer.Duration())
	}
}

// compensate runs queued rollbacks in reverse order. Each is wrapped so one
// failure never stops the rest.
func (m *Manager) compensate(ctx context.Context, compensations []compensation, log *telemetry.Logger) {
	for i := len(compensations) - 1; i >= 0; i-- {
		c := compensations[i]
		log.WithField("compensation", c.name).Warn("running compensation")
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("compensation", c.name).Errorf("compensation panicked: %v", r)
				}
			}()
			if err := c.run(ctx); err != nil {
				log.WithField("compensation", c.name).WithError(err).Error("compensation failed")
			}
		}()
	}
}

// SubmitResource admits a single-resource job and runs it asynchronously,
// returning the job token for polling.
func (m *Manager) SubmitResource(ctx context.Context, req *provision.ResourceRequest) (string, error) {
	token, err := m.jobs.CreateJob(ctx, &stores.Job{
		ProjectName:  req.ProjectName,
		ResourceType: req.ResourceType,
		Status:       stores.StatusInProgress,
	})
	if err != nil {
		return "", fmt.Errorf("admitting job: %w", err)
	}

	go func() {
		result := m.ExecuteResource(context.Background(), req)
		m.recordJobResult(context.Background(), token, result)
	}()
	return token, nil
}

// ExecuteResource runs one resource type synchronously, without the
// repository steps around it.
func (m *Manager) ExecuteResource(ctx context.Context, req *provision.ResourceRequest) stack.Result {
	params := provision.FlattenParameters(req.Parameters)
	params["Name"] = req.ProjectName
	return m.executor.Execute(ctx, stack.Request{
		Project:      req.ProjectName,
		ResourceType: req.ResourceType,
		Config:       params,
	})
}

// ExecuteResourceTracked runs a resource synchronously while still
// recording the outcome in the job registry.
func (m *Manager) ExecuteResourceTracked(ctx context.Context, req *provision.ResourceRequest) (string, stack.Result, error) {
	token, err := m.jobs.CreateJob(ctx, &stores.Job{
		ProjectName:  req.ProjectName,
		ResourceType: req.ResourceType,
		Status:       stores.StatusInProgress,
	})
	if err != nil {
		return "", stack.Result{}, fmt.Errorf("admitting job: %w", err)
	}
	result := m.ExecuteResource(ctx, req)
	m.recordJobResult(ctx, token, result)
	return token, result, nil
}

// JobStatus returns the job record for polling.
func (m *Manager) JobStatus(ctx context.Context, token string) (*stores.Job, error) {
	return m.jobs.GetJob(ctx, token)
}

func (m *Manager) recordJobResult(ctx context.Context, token string, result stack.Result) {
	var err error
	if result.StatusCode == 200 {
		err = m.jobs.SucceedJob(ctx, token, result.StatusCode, result.Outputs)
	} else {
		err = m.jobs.FailJob(ctx, token, result.StatusCode, result.Message)
	}
	if err != nil {
		m.log.WithJobID(token).WithError(err).Error("failed to record job result")
	}
}
