// Package scaffold generates application-framework starter projects by
// invoking the framework's own generator tool into a target directory.
//
// The mapping from framework to generator command is closed and static:
// no user-supplied string ever reaches a command line.
package scaffold

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// Framework identifies an application framework with a known generator.
type Framework string

const (
	FrameworkDotnet     Framework = "dotnet"
	FrameworkReact      Framework = "react"
	FrameworkVue        Framework = "vue"
	FrameworkNuxt       Framework = "nuxt"
	FrameworkJavaSpring Framework = "javaspring"
)

// generatorCommand is an executable plus its fixed argument list.
type generatorCommand struct {
	executable string
	args       []string
}

// generators is the closed mapping from framework to generator invocation.
var generators = map[Framework]generatorCommand{
	FrameworkDotnet:     {"dotnet", []string{"new", "webapi", "-n", "app"}},
	FrameworkReact:      {"pnpm", []string{"create", "vite", "app", "--template", "react-ts", "--yes", "--no-interactive"}},
	FrameworkVue:        {"pnpm", []string{"create", "vite", "app", "--template", "vue", "--yes", "--no-interactive"}},
	FrameworkNuxt:       {"npx", []string{"nuxi", "init", "app"}},
	FrameworkJavaSpring: {"spring", []string{"init", "app", "--build=maven", "--java-version=17"}},
}

// ParseFramework parses a framework identifier case-insensitively.
func ParseFramework(value string) (Framework, bool) {
	fw := Framework(strings.ToLower(strings.TrimSpace(value)))
	_, ok := generators[fw]
	return fw, ok
}

// String returns the framework identifier.
func (f Framework) String() string {
	return string(f)
}

// FrameworksFromParameters extracts the frameworks requested by a parameter
// map: every key containing "framework" (case-insensitive) whose value parses
// as a known framework. Unknown values are skipped, not rejected.
func FrameworksFromParameters(params map[string]interface{}) []Framework {
	var frameworks []Framework
	for key, value := range params {
		if !strings.Contains(strings.ToLower(key), "framework") {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if fw, ok := ParseFramework(s); ok {
			frameworks = append(frameworks, fw)
		}
	}
	return frameworks
}

// ScaffoldError reports a generator process that exited non-zero.
type ScaffoldError struct {
	Framework Framework
	ExitCode  int
	Stderr    string
}

// Error implements the error interface.
func (e *ScaffoldError) Error() string {
	return fmt.Sprintf("scaffold generator for %s exited with code %d: %s",
		e.Framework, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Generate runs the generator for the given framework inside targetDir.
// The target directory must already exist; generated files are written
// beneath it. Nothing is pushed anywhere by this function.
func Generate(ctx context.Context, framework Framework, targetDir string) error {
	gen, ok := generators[framework]
	if !ok {
		return fmt.Errorf("unsupported framework: %s", framework)
	}

	logger := telemetry.FromContext(ctx).WithField("framework", framework.String())
	logger.Debugf("generating scaffold in %s", targetDir)

	cmd := exec.CommandContext(ctx, gen.executable, gen.args...)
	cmd.Dir = targetDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &ScaffoldError{
			Framework: framework,
			ExitCode:  exitCode,
			Stderr:    stderr.String(),
		}
	}

	return nil
}
