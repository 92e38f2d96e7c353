package gitrepo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/scaffold"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// GitHubService implements Service against the GitHub REST API.
type GitHubService struct {
	client  *github.Client
	org     string
	repo    *RepoHandle
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewGitHubService builds an adapter authenticated with a personal access
// token, addressing repositories under the given organization.
func NewGitHubService(ctx context.Context, token, organization string, logger *telemetry.Logger, metrics *telemetry.Metrics) *GitHubService {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHubService{
		client:  github.NewClient(oauth2.NewClient(ctx, ts)),
		org:     organization,
		log:     logger.NewComponentLogger("github").WithPlatform("github"),
		metrics: metrics,
	}
}

// newGitHubServiceWithClient is the test seam.
func newGitHubServiceWithClient(client *github.Client, organization string, logger *telemetry.Logger) *GitHubService {
	return &GitHubService{
		client: client,
		org:    organization,
		log:    logger.NewComponentLogger("github").WithPlatform("github"),
	}
}

func (s *GitHubService) OwnerIdentifier() string {
	return s.org
}

func (s *GitHubService) recordCall(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordPlatformCall("github", operation)
	if err != nil {
		s.metrics.RecordPlatformError("github", operation)
	}
}

// platformError classifies a provider failure, surfacing the provider's
// own status code when the response carries one.
func platformError(resp *github.Response, message string, err error) *provision.Error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else if code, ok := provision.ExtractProviderStatus(err.Error()); ok {
		status = code
	}
	return provision.NewPlatformError(status, message, err)
}

func (s *GitHubService) ResolveOrCreateRepository(ctx context.Context, opts CreateOptions) (*RepoHandle, error) {
	existing, resp, err := s.client.Repositories.Get(ctx, s.org, opts.Name)
	s.recordCall("get_repository", err)
	if err == nil {
		s.repo = &RepoHandle{Name: existing.GetName(), Owner: s.org, URL: existing.GetHTMLURL()}
		s.log.WithProject(opts.Name).Info("repository already exists, reusing")
		return s.repo, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, platformError(resp, fmt.Sprintf("resolving repository %s/%s", s.org, opts.Name), err)
	}

	created, resp, err := s.client.Repositories.Create(ctx, s.org, &github.Repository{
		Name:        github.String(opts.Name),
		Description: github.String(opts.Description),
		Private:     github.Bool(opts.Private),
		AutoInit:    github.Bool(true),
	})
	s.recordCall("create_repository", err)
	if err != nil {
		return nil, platformError(resp, fmt.Sprintf("creating repository %s/%s", s.org, opts.Name), err)
	}

	s.repo = &RepoHandle{Name: created.GetName(), Owner: s.org, URL: created.GetHTMLURL()}
	s.log.WithProject(opts.Name).WithField("url", s.repo.URL).Info("repository created")
	return s.repo, nil
}

// writeFile creates the file, and on a 422 conflict fetches the current SHA
// and updates it instead.
func (s *GitHubService) writeFile(ctx context.Context, repoPath string, content []byte) error {
	message := github.String(fmt.Sprintf("Add %s", repoPath))
	opts := &github.RepositoryContentFileOptions{Message: message, Content: content}

	_, resp, err := s.client.Repositories.CreateFile(ctx, s.org, s.repo.Name, repoPath, opts)
	s.recordCall("create_file", err)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return platformError(resp, fmt.Sprintf("creating file %s", repoPath), err)
	}

	current, _, resp, err := s.client.Repositories.GetContents(ctx, s.org, s.repo.Name, repoPath, nil)
	s.recordCall("get_contents", err)
	if err != nil {
		return platformError(resp, fmt.Sprintf("resolving existing file %s", repoPath), err)
	}
	opts.Message = github.String(fmt.Sprintf("Update %s", repoPath))
	opts.SHA = current.SHA

	_, resp, err = s.client.Repositories.UpdateFile(ctx, s.org, s.repo.Name, repoPath, opts)
	s.recordCall("update_file", err)
	if err != nil {
		return platformError(resp, fmt.Sprintf("updating file %s", repoPath), err)
	}
	return nil
}

func (s *GitHubService) PushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string) error {
	if s.repo == nil {
		return provision.NewPlatformError(0, "no repository bound, resolve or create one first", nil)
	}
	return pushTree(ctx, localDir, targetPrefix, substitutions, s.writeFile)
}

func (s *GitHubService) InitializeFrameworks(ctx context.Context, frameworks []scaffold.Framework, projectName string) error {
	return scaffoldAndPush(ctx, s, frameworks, projectName, s.log)
}

func (s *GitHubService) DeleteRepository(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	resp, err := s.client.Repositories.Delete(ctx, s.org, s.repo.Name)
	s.recordCall("delete_repository", err)
	if err != nil {
		return platformError(resp, fmt.Sprintf("deleting repository %s/%s", s.org, s.repo.Name), err)
	}
	s.log.WithProject(s.repo.Name).Info("repository deleted")
	s.repo = nil
	return nil
}

func (s *GitHubService) PushInfrastructure(ctx context.Context, localPath string, params map[string]string, projectName string) error {
	merged := make(map[string]string, len(params)+1)
	for key, value := range params {
		merged[key] = value
	}
	merged["Name"] = projectName
	return s.PushTree(ctx, localPath, "infrastructure", merged)
}
