package stack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// depCacheDir is the dependency cache the install step produces.
const depCacheDir = "node_modules"

// CLIEngine drives the infrastructure engine binary as a subprocess.
type CLIEngine struct {
	// Binary is the engine executable, e.g. "pulumi".
	Binary string

	// InstallBinary bootstraps program dependencies, e.g. "npm".
	InstallBinary string

	// Env is appended to the subprocess environment on every invocation.
	Env []string

	log *telemetry.Logger
}

// NewCLIEngine builds an engine around the given binaries. Empty binary
// names fall back to pulumi and npm.
func NewCLIEngine(binary, installBinary string, logger *telemetry.Logger) *CLIEngine {
	if binary == "" {
		binary = "pulumi"
	}
	if installBinary == "" {
		installBinary = "npm"
	}
	return &CLIEngine{
		Binary:        binary,
		InstallBinary: installBinary,
		log:           logger.NewComponentLogger("engine"),
	}
}

// redactArgs returns the argv for logging and error text. Config-mutating
// invocations carry the cleartext value as the last argument; it never
// reaches the log.
func redactArgs(args []string) string {
	if len(args) >= 3 && args[0] == "config" && args[1] == "set" {
		masked := append([]string(nil), args...)
		masked[len(masked)-1] = "[secret]"
		return strings.Join(masked, " ")
	}
	return strings.Join(args, " ")
}

// run executes one engine invocation in workdir, streaming stdout into the
// process log and capturing stderr for error reporting.
func (e *CLIEngine) run(ctx context.Context, workdir, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.WithField("binary", binary).WithField("args", redactArgs(args)).Debug("running engine command")
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w: %s",
			binary, redactArgs(args), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// runStreaming is run with stdout wired to the process log instead of a
// buffer, for long apply output.
func (e *CLIEngine) runStreaming(ctx context.Context, workdir, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), e.Env...)

	var stderr bytes.Buffer
	cmd.Stdout = e.log.Writer()
	cmd.Stderr = &stderr

	e.log.WithField("binary", binary).WithField("args", redactArgs(args)).Debug("running engine command")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s",
			binary, redactArgs(args), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (e *CLIEngine) InstallDependencies(ctx context.Context, workdir string) error {
	return e.runStreaming(ctx, workdir, e.InstallBinary, "install")
}

func (e *CLIEngine) DependenciesInstalled(workdir string) bool {
	info, err := os.Stat(filepath.Join(workdir, depCacheDir))
	return err == nil && info.IsDir()
}

func (e *CLIEngine) CreateOrSelectStack(ctx context.Context, workdir string, stack Identity) error {
	_, err := e.run(ctx, workdir, e.Binary, "stack", "select", "--create", stack.String())
	return err
}

func (e *CLIEngine) GetConfig(ctx context.Context, workdir string, stack Identity) (map[string]string, error) {
	out, err := e.run(ctx, workdir, e.Binary, "config", "--json", "--show-secrets", "--stack", stack.String())
	if err != nil {
		return nil, err
	}
	var raw map[string]struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parsing stack config: %w", err)
	}
	cfg := make(map[string]string, len(raw))
	for key, entry := range raw {
		cfg[key] = entry.Value
	}
	return cfg, nil
}

func (e *CLIEngine) SetConfig(ctx context.Context, workdir string, stack Identity, key, value string, secret bool) error {
	args := []string{"config", "set", "--stack", stack.String()}
	if secret {
		args = append(args, "--secret")
	}
	args = append(args, key, value)
	_, err := e.run(ctx, workdir, e.Binary, args...)
	return err
}

func (e *CLIEngine) RemoveConfig(ctx context.Context, workdir string, stack Identity, key string) error {
	_, err := e.run(ctx, workdir, e.Binary, "config", "rm", "--stack", stack.String(), key)
	return err
}

func (e *CLIEngine) Up(ctx context.Context, workdir string, stack Identity) error {
	return e.runStreaming(ctx, workdir, e.Binary,
		"up", "--yes", "--skip-preview", "--non-interactive", "--stack", stack.String())
}

func (e *CLIEngine) Refresh(ctx context.Context, workdir string, stack Identity) error {
	return e.runStreaming(ctx, workdir, e.Binary,
		"refresh", "--yes", "--non-interactive", "--stack", stack.String())
}

func (e *CLIEngine) Destroy(ctx context.Context, workdir string, stack Identity) error {
	return e.runStreaming(ctx, workdir, e.Binary,
		"destroy", "--yes", "--non-interactive", "--stack", stack.String())
}

func (e *CLIEngine) Outputs(ctx context.Context, workdir string, stack Identity) (map[string]interface{}, error) {
	out, err := e.run(ctx, workdir, e.Binary,
		"stack", "output", "--json", "--show-secrets", "--stack", stack.String())
	if err != nil {
		return nil, err
	}
	outputs := make(map[string]interface{})
	if strings.TrimSpace(out) == "" {
		return outputs, nil
	}
	if err := json.Unmarshal([]byte(out), &outputs); err != nil {
		return nil, fmt.Errorf("parsing stack outputs: %w", err)
	}
	return outputs, nil
}

func (e *CLIEngine) StateFilePath(workdir string, stack Identity) string {
	return filepath.Join(workdir, ".pulumi", "stacks", stack.String()+".json")
}
