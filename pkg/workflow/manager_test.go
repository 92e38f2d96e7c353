package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/gitrepo"
	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/scaffold"
	"github.com/forgeplane/forgeplane/pkg/stack"
	"github.com/forgeplane/forgeplane/pkg/stores"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// fakeService implements gitrepo.Service without any network.
type fakeService struct {
	createErr   error
	scaffoldErr error
	created     bool
	deleted     bool
	frameworks  []scaffold.Framework
}

func (f *fakeService) ResolveOrCreateRepository(ctx context.Context, opts gitrepo.CreateOptions) (*gitrepo.RepoHandle, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = true
	return &gitrepo.RepoHandle{
		Name:  opts.Name,
		Owner: "org",
		URL:   fmt.Sprintf("https://github.com/org/%s", opts.Name),
	}, nil
}

func (f *fakeService) PushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string) error {
	return nil
}

func (f *fakeService) InitializeFrameworks(ctx context.Context, frameworks []scaffold.Framework, projectName string) error {
	f.frameworks = frameworks
	return f.scaffoldErr
}

func (f *fakeService) DeleteRepository(ctx context.Context) error {
	f.deleted = true
	return nil
}

func (f *fakeService) OwnerIdentifier() string { return "org" }

func (f *fakeService) PushInfrastructure(ctx context.Context, localPath string, params map[string]string, projectName string) error {
	return nil
}

// fakeExecutor answers with a canned result and records the request.
type fakeExecutor struct {
	result   stack.Result
	requests []stack.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, req stack.Request) stack.Result {
	f.requests = append(f.requests, req)
	result := f.result
	result.Name = stack.NewIdentity(req.Project, req.ResourceType).String()
	result.ResourceType = req.ResourceType
	return result
}

func validConfig() *config.Configs {
	return &config.Configs{
		GitHubToken:            "ghp_realtoken",
		GitHubOrganizationName: "org",
		GitLabToken:            "glpat-realtoken",
		GitLabBaseUrl:          "https://gitlab.example.com",
	}
}

type managerFixture struct {
	manager  *Manager
	store    *stores.MemoryStore
	executor *fakeExecutor
	service  *fakeService
	factory  *countingFactory
}

type countingFactory struct {
	service gitrepo.Service
	calls   int
}

func newManagerFixture(t *testing.T, cfg *config.Configs, executor *fakeExecutor, service *fakeService) *managerFixture {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	store := stores.NewMemoryStore()
	factory := &countingFactory{service: service}
	manager := NewManager(cfg, store, store, executor,
		func(ctx context.Context, platformKind string, creds map[string]string) (gitrepo.Service, error) {
			factory.calls++
			return factory.service, nil
		},
		logger, nil, nil)
	return &managerFixture{manager: manager, store: store, executor: executor, service: service, factory: factory}
}

func submitAndRun(t *testing.T, fx *managerFixture, req *provision.ProjectRequest) *stores.WorkflowRecord {
	t.Helper()
	ctx := context.Background()
	record := &stores.WorkflowRecord{
		ProjectName:  req.ProjectName,
		TemplateName: req.TemplateName,
		Status:       stores.StatusInProgress,
		CurrentStep:  stores.StepInputVerification,
	}
	if req.Platform != nil {
		record.Platform = req.Platform.Kind()
	}
	id, err := fx.store.CreateWorkflow(ctx, record)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	fx.manager.Execute(ctx, id, req)
	final, err := fx.manager.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return final
}

func TestWorkflowSuccessEndToEnd(t *testing.T) {
	executor := &fakeExecutor{result: stack.Result{
		StatusCode: 200,
		Outputs:    map[string]interface{}{"repoUrl": "https://github.com/org/shopdemo"},
	}}
	fx := newManagerFixture(t, validConfig(), executor, &fakeService{})

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Platform:     &provision.PlatformConfig{Type: "github"},
	})

	if record.Status != stores.StatusSuccess {
		t.Fatalf("expected Success, got %s (%s)", record.Status, record.Error)
	}
	if record.CurrentStep != stores.StepSuccess {
		t.Fatalf("expected Success step, got %s", record.CurrentStep)
	}
	if record.Outputs["gitRepositoryUrl"] != "https://github.com/org/shopdemo" {
		t.Fatalf("repository output missing: %v", record.Outputs)
	}
	if record.Outputs["repoUrl"] != "https://github.com/org/shopdemo" {
		t.Fatalf("stack outputs must merge into workflow outputs: %v", record.Outputs)
	}

	// Steps advanced monotonically.
	last := -1
	for _, step := range record.StepsCompleted {
		if step.Index() <= last {
			t.Fatalf("steps regressed: %v", record.StepsCompleted)
		}
		last = step.Index()
	}
	if fx.service.deleted {
		t.Fatalf("successful workflow must not delete the repository")
	}
}

func TestWorkflowPlaceholderTokenFailsBeforeAnyCall(t *testing.T) {
	cfg := validConfig()
	cfg.GitHubToken = "should be set to your GitHub personal access token"
	executor := &fakeExecutor{result: stack.Result{StatusCode: 200}}
	fx := newManagerFixture(t, cfg, executor, &fakeService{})

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Platform:     &provision.PlatformConfig{Type: "github"},
	})

	if record.Status != stores.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if record.CurrentStep != stores.StepGitSessionSetup {
		t.Fatalf("expected failure at GitSessionSetup, got %s", record.CurrentStep)
	}
	if !strings.Contains(record.Error, "missing in configuration") {
		t.Fatalf("unexpected error %q", record.Error)
	}
	if fx.factory.calls != 0 {
		t.Fatalf("no adapter may be built with placeholder credentials")
	}
	if len(fx.executor.requests) != 0 {
		t.Fatalf("no stack execution may happen with placeholder credentials")
	}
}

func TestWorkflowUnsupportedPlatform(t *testing.T) {
	executor := &fakeExecutor{result: stack.Result{StatusCode: 200}}
	fx := newManagerFixture(t, validConfig(), executor, &fakeService{})

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Platform:     &provision.PlatformConfig{Type: "bitbucket"},
	})

	if record.Status != stores.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if !strings.Contains(record.Error, "Unsupported platform type: bitbucket") {
		t.Fatalf("unexpected error %q", record.Error)
	}
}

func TestWorkflowScaffoldFailureDeletesEmptyRepository(t *testing.T) {
	service := &fakeService{scaffoldErr: fmt.Errorf("dotnet new exited 1")}
	executor := &fakeExecutor{result: stack.Result{StatusCode: 200}}
	fx := newManagerFixture(t, validConfig(), executor, service)

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Parameters:   map[string]interface{}{"backendFramework": "dotnet"},
		Platform:     &provision.PlatformConfig{Type: "github"},
	})

	if record.Status != stores.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if !service.deleted {
		t.Fatalf("scaffold failure must roll back the empty repository")
	}
	if len(fx.executor.requests) != 0 {
		t.Fatalf("stack must not execute after a scaffold failure")
	}
}

func TestWorkflowStackFailureKeepsPopulatedRepository(t *testing.T) {
	service := &fakeService{}
	executor := &fakeExecutor{result: stack.Result{StatusCode: 500, Message: "apply failed"}}
	fx := newManagerFixture(t, validConfig(), executor, service)

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Parameters:   map[string]interface{}{"frontendFramework": "react"},
		Platform:     &provision.PlatformConfig{Type: "github"},
	})

	if record.Status != stores.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if record.CurrentStep != stores.StepStackExecution {
		t.Fatalf("expected failure at StackExecution, got %s", record.CurrentStep)
	}
	if service.deleted {
		t.Fatalf("repository with pushed frameworks must survive a stack failure")
	}
}

func TestWorkflowWithoutPlatformSkipsRepositorySteps(t *testing.T) {
	executor := &fakeExecutor{result: stack.Result{
		StatusCode: 200,
		Outputs:    map[string]interface{}{"bucketName": "shopdemo-assets"},
	}}
	fx := newManagerFixture(t, validConfig(), executor, &fakeService{})

	record := submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
	})

	if record.Status != stores.StatusSuccess {
		t.Fatalf("expected Success, got %s (%s)", record.Status, record.Error)
	}
	for _, step := range record.StepsCompleted {
		if step == stores.StepGitRepositoryCreation {
			t.Fatalf("repository steps must be skipped without a platform")
		}
	}
	if fx.factory.calls != 0 {
		t.Fatalf("no adapter may be built without a platform block")
	}
}

func TestWorkflowCredentialsReachStackConfig(t *testing.T) {
	executor := &fakeExecutor{result: stack.Result{StatusCode: 200}}
	fx := newManagerFixture(t, validConfig(), executor, &fakeService{})

	submitAndRun(t, fx, &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Platform:     &provision.PlatformConfig{Type: "github"},
	})

	if len(fx.executor.requests) != 1 {
		t.Fatalf("expected one stack execution, got %d", len(fx.executor.requests))
	}
	cfg := fx.executor.requests[0].Config
	if cfg[CredGitHubToken] != "ghp_realtoken" {
		t.Fatalf("credentials must flow into stack config")
	}
	if cfg["Name"] != "shopdemo" {
		t.Fatalf("project name must flow into stack config")
	}
}

// flakyWorkflowStore fails the update that records failStep, then behaves
// normally so the terminal write can still land.
type flakyWorkflowStore struct {
	*stores.MemoryStore
	failStep stores.Step
}

func (s *flakyWorkflowStore) UpdateWorkflow(ctx context.Context, record *stores.WorkflowRecord) error {
	if record.Status == stores.StatusInProgress && record.CurrentStep == s.failStep {
		return fmt.Errorf("database is locked")
	}
	return s.MemoryStore.UpdateWorkflow(ctx, record)
}

func TestWorkflowStoreFailureHaltsAndRollsBack(t *testing.T) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	store := stores.NewMemoryStore()
	flaky := &flakyWorkflowStore{MemoryStore: store, failStep: stores.StepStackExecution}
	executor := &fakeExecutor{result: stack.Result{StatusCode: 200}}
	service := &fakeService{}
	manager := NewManager(validConfig(), flaky, store, executor,
		func(ctx context.Context, platformKind string, creds map[string]string) (gitrepo.Service, error) {
			return service, nil
		},
		logger, nil, nil)

	ctx := context.Background()
	req := &provision.ProjectRequest{
		TemplateName: "ecommerce",
		ProjectName:  "shopdemo",
		Platform:     &provision.PlatformConfig{Type: "github"},
	}
	id, err := store.CreateWorkflow(ctx, &stores.WorkflowRecord{
		ProjectName:  req.ProjectName,
		TemplateName: req.TemplateName,
		Status:       stores.StatusInProgress,
		CurrentStep:  stores.StepInputVerification,
		Platform:     "github",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	manager.Execute(ctx, id, req)

	record, err := manager.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if record.Status != stores.StatusFailed {
		t.Fatalf("expected Failed when a step cannot be recorded, got %s", record.Status)
	}
	if !strings.Contains(record.Error, "database is locked") {
		t.Fatalf("unexpected error %q", record.Error)
	}
	if len(executor.requests) != 0 {
		t.Fatalf("stack execution must not run when its step was not recorded")
	}
	if !service.deleted {
		t.Fatalf("queued compensations must run when the workflow halts")
	}
}

func TestResolveCredentialsGitLab(t *testing.T) {
	cfg := validConfig()
	creds, err := ResolveCredentials(cfg, provision.PlatformGitLab)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds[CredGitLabBaseURL] != "https://gitlab.example.com" {
		t.Fatalf("unexpected creds %v", creds)
	}

	cfg.GitLabBaseUrl = "gitlab.example.com"
	if _, err := ResolveCredentials(cfg, provision.PlatformGitLab); !provision.IsCredential(err) {
		t.Fatalf("relative base URL must fail as credential error, got %v", err)
	}
}
