package stack

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// Locator resolves a template or platform identifier to the working
// directory holding its infrastructure program.
type Locator interface {
	Locate(identifier string) (string, error)
}

// SourcePusher pushes the infrastructure source of an applied stack to the
// project repository. Both source-control adapters implement it identically.
type SourcePusher interface {
	// OwnerIdentifier returns the organization or group the repository
	// lives under.
	OwnerIdentifier() string

	// PushInfrastructure uploads the program source at localPath under the
	// repository's infrastructure prefix, applying params as substitutions.
	PushInfrastructure(ctx context.Context, localPath string, params map[string]string, projectName string) error
}

// Request describes one stack execution.
type Request struct {
	// Project scopes the stack identity.
	Project string

	// ResourceType selects the program to execute and completes the
	// stack identity.
	ResourceType string

	// Config is the desired stack configuration, keys optionally
	// namespace-qualified.
	Config map[string]string

	// Pusher, when set, receives the program source after a successful
	// apply.
	Pusher SourcePusher

	// SkipDestroyOnFailure suppresses the compensating destroy, used by
	// previews and tests.
	SkipDestroyOnFailure bool
}

// Result is the outcome of one stack execution.
type Result struct {
	// Name is the stack identity that was executed.
	Name string `json:"name"`

	// ResourceType is the resource type the stack provisioned.
	ResourceType string `json:"resourceType"`

	// StatusCode is an HTTP-shaped status: 200 success, 400 bad input or
	// unknown identifier, 500 install or apply failure.
	StatusCode int `json:"statusCode"`

	// Message carries the failure detail, empty on success.
	Message string `json:"message,omitempty"`

	// Outputs are the program's stack outputs, nil values filtered.
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// Runner sequences one stack execution end to end.
type Runner struct {
	engine  Engine
	locator Locator
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewRunner wires a runner. Metrics and tracer may be nil.
func NewRunner(engine Engine, locator Locator, logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *Runner {
	return &Runner{
		engine:  engine,
		locator: locator,
		log:     logger.NewComponentLogger("stack-runner"),
		metrics: metrics,
		tracer:  tracer,
	}
}

// secretKeyFragments mark configuration keys persisted as engine secrets.
var secretKeyFragments = []string{"token", "secret", "password", "apikey", "api_key"}

func isSecretKey(name string) bool {
	lowered := strings.ToLower(name)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// normalizeValue lowercases boolean-looking values so the engine's typed
// config never sees "True" or "FALSE".
func normalizeValue(value string) string {
	switch strings.ToLower(value) {
	case "true":
		return "true"
	case "false":
		return "false"
	}
	return value
}

// Execute runs the full stack lifecycle for one resource type. On apply
// failure it refreshes and destroys the stack exactly once before returning,
// and the local state file is removed on every exit path past stack
// selection.
func (r *Runner) Execute(ctx context.Context, req Request) Result {
	identity := NewIdentity(req.Project, req.ResourceType)
	log := r.log.WithProject(req.Project).WithStack(identity.String())

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartStackSpan(ctx, identity.String(), req.ResourceType, "execute")
		defer span.End()
	}

	workdir, err := r.locator.Locate(req.ResourceType)
	if err != nil {
		log.WithError(err).Warn("resource type not found")
		return r.failure(identity, req.ResourceType,
			provision.NewNotFoundError(fmt.Sprintf("unknown resource type %q", req.ResourceType)))
	}

	if !r.engine.DependenciesInstalled(workdir) {
		log.Info("installing program dependencies")
		if err := r.engine.InstallDependencies(ctx, workdir); err != nil {
			return r.failure(identity, req.ResourceType,
				provision.NewDependencyInstallError(err.Error(), err).WithProject(req.Project))
		}
	}

	if err := r.engine.CreateOrSelectStack(ctx, workdir, identity); err != nil {
		return r.failure(identity, req.ResourceType,
			provision.NewStackExecutionError("selecting stack", err).WithProject(req.Project))
	}
	defer r.removeStateFile(workdir, identity, log)

	if err := r.reconcileConfig(ctx, workdir, identity, req.Config); err != nil {
		return r.failure(identity, req.ResourceType,
			provision.NewStackExecutionError("reconciling stack config", err).WithProject(req.Project))
	}

	timer := telemetry.NewTimer()
	if err := r.engine.Up(ctx, workdir, identity); err != nil {
		log.WithError(err).Error("stack apply failed")
		if !req.SkipDestroyOnFailure {
			r.destroyAfterFailure(ctx, workdir, identity, log)
		}
		return r.failure(identity, req.ResourceType,
			provision.NewStackExecutionError(
				fmt.Sprintf("applying stack for project %s resource %s", req.Project, req.ResourceType), err).
				WithProject(req.Project))
	}
	if r.metrics != nil {
		r.metrics.RecordStackApply(req.ResourceType, timer.Duration())
	}

	rawOutputs, err := r.engine.Outputs(ctx, workdir, identity)
	if err != nil {
		return r.failure(identity, req.ResourceType,
			provision.NewStackExecutionError("reading stack outputs", err).WithProject(req.Project))
	}
	outputs := make(map[string]interface{}, len(rawOutputs))
	for key, value := range rawOutputs {
		if value == nil {
			continue
		}
		outputs[key] = value
	}
	log.WithField("outputs", len(outputs)).Info("stack applied")

	if req.Pusher != nil {
		params := make(map[string]string, len(req.Config)+1)
		for key, value := range req.Config {
			params[key] = value
		}
		params["Name"] = req.Project
		if err := req.Pusher.PushInfrastructure(ctx, workdir, params, req.Project); err != nil {
			// The infrastructure is live; a push failure degrades the
			// repository, not the resources.
			log.WithError(err).Warn("failed to push infrastructure source")
		}
	}

	return Result{
		Name:         identity.String(),
		ResourceType: req.ResourceType,
		StatusCode:   http.StatusOK,
		Outputs:      outputs,
	}
}

// reconcileConfig converges the stack's persisted configuration on the
// desired set. Unqualified desired keys are namespaced under the program
// manifest's name; persisted keys in that namespace with no desired
// counterpart are removed.
func (r *Runner) reconcileConfig(ctx context.Context, workdir string, identity Identity, desired map[string]string) error {
	namespace, err := ProgramNamespace(workdir)
	if err != nil {
		return err
	}

	qualified := make(map[string]string, len(desired))
	for rawKey, value := range desired {
		key := ParseKey(rawKey).Qualified(namespace)
		qualified[key.String()] = normalizeValue(value)
	}

	persisted, err := r.engine.GetConfig(ctx, workdir, identity)
	if err != nil {
		return err
	}

	for rawKey := range persisted {
		key := ParseKey(rawKey)
		if key.Namespace != namespace {
			continue
		}
		if _, wanted := qualified[key.String()]; wanted {
			continue
		}
		if err := r.engine.RemoveConfig(ctx, workdir, identity, key.String()); err != nil {
			return fmt.Errorf("removing stale config key %s: %w", key, err)
		}
	}

	for key, value := range qualified {
		if err := r.engine.SetConfig(ctx, workdir, identity, key, value, isSecretKey(ParseKey(key).Name)); err != nil {
			return fmt.Errorf("setting config key %s: %w", key, err)
		}
	}
	return nil
}

// destroyAfterFailure refreshes then destroys the stack best-effort. It runs
// exactly once per failed apply; errors are logged, never propagated, so the
// original apply error is what surfaces.
func (r *Runner) destroyAfterFailure(ctx context.Context, workdir string, identity Identity, log *telemetry.Logger) {
	log.Warn("apply failed, destroying partial stack")
	if err := r.engine.Refresh(ctx, workdir, identity); err != nil {
		log.WithError(err).Warn("refresh before destroy failed")
	}
	status := "success"
	if err := r.engine.Destroy(ctx, workdir, identity); err != nil {
		status = "failure"
		log.WithError(err).Error("compensating destroy failed, resources may be orphaned")
	}
	if r.metrics != nil {
		r.metrics.RecordStackDestroy(status)
	}
}

func (r *Runner) removeStateFile(workdir string, identity Identity, log *telemetry.Logger) {
	path := r.engine.StateFilePath(workdir, identity)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to remove stack state file")
	}
}

// failure shapes a classified error into a Result, preferring a provider
// status embedded in the error text over the kind's default mapping.
func (r *Runner) failure(identity Identity, resourceType string, err *provision.Error) Result {
	if r.metrics != nil {
		r.metrics.RecordError(string(err.Kind))
	}
	status := provision.HTTPStatus(err)
	if code, ok := provision.ExtractProviderStatus(err.Error()); ok && err.Kind == provision.KindPlatform {
		status = code
	}
	return Result{
		Name:         identity.String(),
		ResourceType: resourceType,
		StatusCode:   status,
		Message:      err.Error(),
	}
}
