package stack

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// fakeEngine records its calls and answers from canned state.
type fakeEngine struct {
	workdir      string
	installed    bool
	config       map[string]string
	outputs      map[string]interface{}
	upErr        error
	destroyErr   error
	stateFile    string
	setCalls     []string
	removedKeys  []string
	upCalls      int
	refreshCalls int
	destroyCalls int
}

func (f *fakeEngine) InstallDependencies(ctx context.Context, workdir string) error {
	f.installed = true
	return nil
}

func (f *fakeEngine) DependenciesInstalled(workdir string) bool { return f.installed }

func (f *fakeEngine) CreateOrSelectStack(ctx context.Context, workdir string, stack Identity) error {
	if f.stateFile != "" {
		if err := os.MkdirAll(filepath.Dir(f.stateFile), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(f.stateFile, []byte("{}"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) GetConfig(ctx context.Context, workdir string, stack Identity) (map[string]string, error) {
	out := make(map[string]string, len(f.config))
	for k, v := range f.config {
		out[k] = v
	}
	return out, nil
}

func (f *fakeEngine) SetConfig(ctx context.Context, workdir string, stack Identity, key, value string, secret bool) error {
	f.setCalls = append(f.setCalls, fmt.Sprintf("%s=%s", key, value))
	f.config[key] = value
	return nil
}

func (f *fakeEngine) RemoveConfig(ctx context.Context, workdir string, stack Identity, key string) error {
	f.removedKeys = append(f.removedKeys, key)
	delete(f.config, key)
	return nil
}

func (f *fakeEngine) Up(ctx context.Context, workdir string, stack Identity) error {
	f.upCalls++
	return f.upErr
}

func (f *fakeEngine) Refresh(ctx context.Context, workdir string, stack Identity) error {
	f.refreshCalls++
	return nil
}

func (f *fakeEngine) Destroy(ctx context.Context, workdir string, stack Identity) error {
	f.destroyCalls++
	return f.destroyErr
}

func (f *fakeEngine) Outputs(ctx context.Context, workdir string, stack Identity) (map[string]interface{}, error) {
	return f.outputs, nil
}

func (f *fakeEngine) StateFilePath(workdir string, stack Identity) string { return f.stateFile }

type fakeLocator struct {
	dirs map[string]string
}

func (l *fakeLocator) Locate(identifier string) (string, error) {
	dir, ok := l.dirs[identifier]
	if !ok {
		return "", fmt.Errorf("no working directory for %q", identifier)
	}
	return dir, nil
}

func newTestRunner(t *testing.T, engine *fakeEngine, resourceType string) (*Runner, string) {
	t.Helper()
	workdir := t.TempDir()
	manifest := "name: proj\nruntime: nodejs\n"
	if err := os.WriteFile(filepath.Join(workdir, "Pulumi.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	engine.workdir = workdir
	engine.stateFile = filepath.Join(workdir, ".pulumi", "stacks", "test-state.json")
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	locator := &fakeLocator{dirs: map[string]string{resourceType: workdir}}
	return NewRunner(engine, locator, logger, nil, nil), workdir
}

func TestExecuteUnknownResourceType(t *testing.T) {
	engine := &fakeEngine{installed: true, config: map[string]string{}}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{Project: "demo", ResourceType: "nosuch"})
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown resource type, got %d", result.StatusCode)
	}
	if engine.upCalls != 0 {
		t.Fatalf("no subprocess work may happen for an unknown identifier")
	}
}

func TestExecuteSuccess(t *testing.T) {
	engine := &fakeEngine{
		installed: true,
		config:    map[string]string{},
		outputs:   map[string]interface{}{"repoUrl": "https://github.com/org/demo", "empty": nil},
	}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{
		Project:      "demo",
		ResourceType: "aks",
		Config:       map[string]string{"Name": "demo"},
	})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", result.StatusCode, result.Message)
	}
	if result.Name != "demo-aks" {
		t.Fatalf("unexpected stack name %q", result.Name)
	}
	if _, present := result.Outputs["empty"]; present {
		t.Fatalf("nil outputs must be filtered")
	}
	if result.Outputs["repoUrl"] != "https://github.com/org/demo" {
		t.Fatalf("missing output, got %v", result.Outputs)
	}
	if _, err := os.Stat(engine.stateFile); !os.IsNotExist(err) {
		t.Fatalf("state file must be removed after a successful run")
	}
}

func TestExecuteReconcilesConfig(t *testing.T) {
	engine := &fakeEngine{
		installed: true,
		config: map[string]string{
			"proj:Stale": "old",
			"aws:region": "eu-west-1",
		},
		outputs: map[string]interface{}{},
	}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{
		Project:      "demo",
		ResourceType: "aks",
		Config:       map[string]string{"Name": "demo", "Enabled": "True"},
	})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", result.StatusCode, result.Message)
	}

	if engine.config["proj:Name"] != "demo" {
		t.Fatalf("unqualified key not namespaced: %v", engine.config)
	}
	if engine.config["proj:Enabled"] != "true" {
		t.Fatalf("boolean value not normalized: %v", engine.config)
	}
	if _, present := engine.config["proj:Stale"]; present {
		t.Fatalf("stale same-namespace key must be removed: %v", engine.config)
	}
	if engine.config["aws:region"] != "eu-west-1" {
		t.Fatalf("foreign-namespace key must survive: %v", engine.config)
	}
	sort.Strings(engine.removedKeys)
	if len(engine.removedKeys) != 1 || engine.removedKeys[0] != "proj:Stale" {
		t.Fatalf("unexpected removals %v", engine.removedKeys)
	}
}

func TestExecuteWithoutManifestKeepsKeysUnqualified(t *testing.T) {
	engine := &fakeEngine{installed: true, config: map[string]string{}, outputs: map[string]interface{}{}}
	workdir := t.TempDir()
	engine.workdir = workdir
	engine.stateFile = filepath.Join(workdir, ".pulumi", "stacks", "test-state.json")
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	runner := NewRunner(engine, &fakeLocator{dirs: map[string]string{"aks": workdir}}, logger, nil, nil)

	result := runner.Execute(context.Background(), Request{
		Project:      "demo",
		ResourceType: "aks",
		Config:       map[string]string{"Name": "demo"},
	})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("a workdir without a manifest must still execute, got %d (%s)", result.StatusCode, result.Message)
	}
	if engine.config["Name"] != "demo" {
		t.Fatalf("keys must stay unqualified without a manifest: %v", engine.config)
	}
}

func TestExecuteApplyFailureDestroysOnce(t *testing.T) {
	engine := &fakeEngine{
		installed: true,
		config:    map[string]string{},
		upErr:     fmt.Errorf("update failed: resource quota exceeded"),
	}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{Project: "demo", ResourceType: "aks"})
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for apply failure, got %d", result.StatusCode)
	}
	if engine.destroyCalls != 1 {
		t.Fatalf("destroy must run exactly once, ran %d times", engine.destroyCalls)
	}
	if engine.refreshCalls != 1 {
		t.Fatalf("refresh must precede destroy, ran %d times", engine.refreshCalls)
	}
	if _, err := os.Stat(engine.stateFile); !os.IsNotExist(err) {
		t.Fatalf("state file must be removed after a failed run")
	}
	if result.Message == "" {
		t.Fatalf("apply failure must carry the original error detail")
	}
}

func TestExecuteDestroyFailureKeepsOriginalError(t *testing.T) {
	engine := &fakeEngine{
		installed:  true,
		config:     map[string]string{},
		upErr:      fmt.Errorf("update failed"),
		destroyErr: fmt.Errorf("destroy also failed"),
	}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{Project: "demo", ResourceType: "aks"})
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
	if got := result.Message; !strings.Contains(got, "update failed") {
		t.Fatalf("original apply error must surface, got %q", got)
	}
}

func TestExecuteInstallsDependenciesWhenMissing(t *testing.T) {
	engine := &fakeEngine{installed: false, config: map[string]string{}, outputs: map[string]interface{}{}}
	runner, _ := newTestRunner(t, engine, "aks")

	result := runner.Execute(context.Background(), Request{Project: "demo", ResourceType: "aks"})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", result.StatusCode, result.Message)
	}
	if !engine.installed {
		t.Fatalf("dependencies must be installed when the cache is absent")
	}
}

func TestIsSecretKey(t *testing.T) {
	if !isSecretKey("githubToken") {
		t.Fatalf("token keys must be secret")
	}
	if isSecretKey("region") {
		t.Fatalf("plain keys must not be secret")
	}
}
