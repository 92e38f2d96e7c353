// Package gitrepo adapts source-hosting platforms behind one capability
// interface: repository creation, tree pushes with parameter substitution,
// framework scaffolding, and deletion.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeplane/forgeplane/pkg/scaffold"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// CreateOptions describes the repository to resolve or create.
type CreateOptions struct {
	// Name is the repository name, equal to the project name.
	Name string

	// Description is the repository description.
	Description string

	// Private creates the repository without public visibility.
	Private bool
}

// RepoHandle identifies a resolved repository.
type RepoHandle struct {
	// Name is the repository name.
	Name string

	// Owner is the organization or group the repository lives under.
	Owner string

	// URL is the repository's web URL.
	URL string

	// ID is the provider's numeric project id, zero when the provider
	// addresses repositories by owner and name.
	ID int
}

// Service is the capability interface every source-control adapter
// implements. The workflow and the stack runner program against it; no
// caller type-switches on the concrete adapter.
type Service interface {
	// ResolveOrCreateRepository returns the repository named in opts,
	// creating it when absent, and binds the adapter to it.
	ResolveOrCreateRepository(ctx context.Context, opts CreateOptions) (*RepoHandle, error)

	// PushTree uploads every file under localDir to the bound repository,
	// prefixed with targetPrefix, applying substitutions per file.
	PushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string) error

	// InitializeFrameworks scaffolds each framework into a temporary
	// project folder and pushes each populated subdirectory under the
	// framework's name.
	InitializeFrameworks(ctx context.Context, frameworks []scaffold.Framework, projectName string) error

	// DeleteRepository removes the bound repository.
	DeleteRepository(ctx context.Context) error

	// OwnerIdentifier returns the organization or group identifier.
	OwnerIdentifier() string

	// PushInfrastructure uploads an infrastructure program source under
	// the repository's infrastructure prefix.
	PushInfrastructure(ctx context.Context, localPath string, params map[string]string, projectName string) error
}

// treePusher is the subset of Service the scaffold flow needs.
type treePusher interface {
	PushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string) error
}

// scaffoldAndPush runs the shared framework-initialization flow: a fresh
// temporary folder scoped to the project, one scaffolded subdirectory per
// framework pushed under the framework name, and the folder removed on
// every exit path.
func scaffoldAndPush(ctx context.Context, pusher treePusher, frameworks []scaffold.Framework, projectName string, log *telemetry.Logger) error {
	if len(frameworks) == 0 {
		return nil
	}

	tmpDir := filepath.Join(os.TempDir(), projectName)
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("clearing scaffold folder: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("creating scaffold folder: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.WithError(err).Warn("failed to remove scaffold folder")
		}
	}()

	for _, framework := range frameworks {
		target := filepath.Join(tmpDir, string(framework))
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("creating framework folder %s: %w", framework, err)
		}
		log.WithField("framework", string(framework)).Info("scaffolding framework")
		if err := scaffold.Generate(ctx, framework, target); err != nil {
			return err
		}
		if err := pusher.PushTree(ctx, target, string(framework), nil); err != nil {
			return err
		}
	}
	return nil
}
