package stack

import "context"

// Engine is the subprocess boundary to the declarative infrastructure
// engine. Implementations treat the engine as opaque: install its program
// dependencies, select a stack, manage stack configuration, and run the
// lifecycle verbs. The CLI implementation shells out; tests inject fakes.
type Engine interface {
	// InstallDependencies bootstraps the program's dependency cache in
	// workdir. Called only when the cache directory is absent.
	InstallDependencies(ctx context.Context, workdir string) error

	// DependenciesInstalled reports whether the program's dependency
	// cache already exists in workdir.
	DependenciesInstalled(workdir string) bool

	// CreateOrSelectStack makes the named stack current, creating it
	// when it does not exist yet.
	CreateOrSelectStack(ctx context.Context, workdir string, stack Identity) error

	// GetConfig returns all configuration persisted on the stack.
	GetConfig(ctx context.Context, workdir string, stack Identity) (map[string]string, error)

	// SetConfig persists one configuration value on the stack.
	SetConfig(ctx context.Context, workdir string, stack Identity, key, value string, secret bool) error

	// RemoveConfig deletes one configuration key from the stack.
	RemoveConfig(ctx context.Context, workdir string, stack Identity, key string) error

	// Up applies the program. Output streams into the process log.
	Up(ctx context.Context, workdir string, stack Identity) error

	// Refresh reconciles stack state against real resources.
	Refresh(ctx context.Context, workdir string, stack Identity) error

	// Destroy tears down all resources in the stack.
	Destroy(ctx context.Context, workdir string, stack Identity) error

	// Outputs returns the program's stack outputs.
	Outputs(ctx context.Context, workdir string, stack Identity) (map[string]interface{}, error)

	// StateFilePath returns the local state file the engine keeps for the
	// stack under workdir.
	StateFilePath(workdir string, stack Identity) string
}
