package gitrepo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gitlab "github.com/xanzy/go-gitlab"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/scaffold"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

const (
	gitlabDefaultBranch  = "main"
	resolveAttempts      = 3
	resolveRetryInterval = 2 * time.Second
)

// GitLabService implements Service against the GitLab REST API.
type GitLabService struct {
	client  *gitlab.Client
	project *gitlab.Project
	log     *telemetry.Logger
	metrics *telemetry.Metrics

	// sleep is swapped in tests to skip the retry interval.
	sleep func(time.Duration)
}

// NormalizeGitLabBaseURL canonicalizes a configured base URL: bare hosts and
// qualified roots both resolve to the instance's /api/v4 endpoint. The URL
// must already be absolute http or https.
func NormalizeGitLabBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", provision.NewCredentialError(fmt.Sprintf("GitLab base URL %q is not an absolute http(s) URL", raw))
	}
	if !strings.HasSuffix(parsed.Path, "/api/v4") {
		parsed.Path = strings.TrimRight(parsed.Path, "/") + "/api/v4"
	}
	return parsed.String(), nil
}

// NewGitLabService builds an adapter authenticated with a private token
// against the instance at baseURL.
func NewGitLabService(token, baseURL string, logger *telemetry.Logger, metrics *telemetry.Metrics) (*GitLabService, error) {
	normalized, err := NormalizeGitLabBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(normalized))
	if err != nil {
		return nil, provision.NewPlatformError(0, "building GitLab client", err)
	}
	return &GitLabService{
		client:  client,
		log:     logger.NewComponentLogger("gitlab").WithPlatform("gitlab"),
		metrics: metrics,
		sleep:   time.Sleep,
	}, nil
}

func (s *GitLabService) OwnerIdentifier() string {
	if s.project != nil && s.project.Namespace != nil {
		return s.project.Namespace.FullPath
	}
	return ""
}

func (s *GitLabService) recordCall(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordPlatformCall("gitlab", operation)
	if err != nil {
		s.metrics.RecordPlatformError("gitlab", operation)
	}
}

func gitlabError(resp *gitlab.Response, message string, err error) *provision.Error {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	} else if err != nil {
		if code, ok := provision.ExtractProviderStatus(err.Error()); ok {
			status = code
		}
	}
	return provision.NewPlatformError(status, message, err)
}

// projectID turns an identifier into the client's project addressing form:
// numeric ids address directly, anything else is treated as a full path.
func projectID(identifier string) interface{} {
	if id, err := strconv.Atoi(identifier); err == nil {
		return id
	}
	return identifier
}

// resolveProject looks a project up with bounded retries, covering the
// window where a just-created project is not yet visible to reads.
func (s *GitLabService) resolveProject(ctx context.Context, identifier string) (*gitlab.Project, error) {
	var lastErr error
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		project, resp, err := s.client.Projects.GetProject(projectID(identifier), nil, gitlab.WithContext(ctx))
		s.recordCall("get_project", err)
		if err == nil {
			return project, nil
		}
		lastErr = gitlabError(resp, fmt.Sprintf("resolving project %q", identifier), err)
		if resp != nil && resp.Response != nil && resp.StatusCode != http.StatusNotFound {
			return nil, lastErr
		}
		if attempt < resolveAttempts {
			s.sleep(resolveRetryInterval)
		}
	}
	return nil, lastErr
}

// findMemberProject resolves a create collision. The API addresses projects
// by numeric id or full namespaced path, never by bare name, and the
// colliding project's namespace is unknown here. Searching projects the
// token is a member of and matching on path finds it whichever namespace it
// landed in.
func (s *GitLabService) findMemberProject(ctx context.Context, name string) (*gitlab.Project, error) {
	projects, resp, err := s.client.Projects.ListProjects(&gitlab.ListProjectsOptions{
		Search:     gitlab.String(name),
		Membership: gitlab.Bool(true),
	}, gitlab.WithContext(ctx))
	s.recordCall("list_projects", err)
	if err != nil {
		return nil, gitlabError(resp, fmt.Sprintf("searching for project %q", name), err)
	}
	for _, project := range projects {
		if project.Path == name || project.Name == name {
			return project, nil
		}
	}
	return nil, provision.NewPlatformError(http.StatusNotFound,
		fmt.Sprintf("project %q already exists but is not visible to the configured token", name), nil)
}

func (s *GitLabService) ResolveOrCreateRepository(ctx context.Context, opts CreateOptions) (*RepoHandle, error) {
	visibility := gitlab.PublicVisibility
	if opts.Private {
		visibility = gitlab.PrivateVisibility
	}
	created, resp, err := s.client.Projects.CreateProject(&gitlab.CreateProjectOptions{
		Name:                 gitlab.String(opts.Name),
		Description:          gitlab.String(opts.Description),
		Visibility:           gitlab.Visibility(visibility),
		InitializeWithReadme: gitlab.Bool(true),
		DefaultBranch:        gitlab.String(gitlabDefaultBranch),
	}, gitlab.WithContext(ctx))
	s.recordCall("create_project", err)
	if err != nil {
		// A name collision means the project exists; fall through to
		// resolution by path.
		if resp == nil || resp.Response == nil || resp.StatusCode != http.StatusBadRequest {
			return nil, gitlabError(resp, fmt.Sprintf("creating project %q", opts.Name), err)
		}
	}

	var project *gitlab.Project
	if created != nil {
		project, err = s.resolveProject(ctx, strconv.Itoa(created.ID))
	} else {
		project, err = s.findMemberProject(ctx, opts.Name)
	}
	if err != nil {
		return nil, err
	}
	s.project = project

	handle := &RepoHandle{
		Name:  project.Path,
		Owner: s.OwnerIdentifier(),
		URL:   project.WebURL,
		ID:    project.ID,
	}
	s.log.WithProject(opts.Name).WithField("url", handle.URL).Info("project ready")
	return handle, nil
}

// writeFile creates the file and falls back to an update when the provider
// reports it already exists (400, 409 or 422 depending on version).
func (s *GitLabService) writeFile(ctx context.Context, repoPath string, content []byte) error {
	branch := gitlab.String(gitlabDefaultBranch)
	body := string(content)

	_, resp, err := s.client.RepositoryFiles.CreateFile(s.project.ID, repoPath, &gitlab.CreateFileOptions{
		Branch:        branch,
		Content:       gitlab.String(body),
		CommitMessage: gitlab.String(fmt.Sprintf("Add %s", repoPath)),
	}, gitlab.WithContext(ctx))
	s.recordCall("create_file", err)
	if err == nil {
		return nil
	}
	if resp == nil || resp.Response == nil || !isFileConflict(resp.StatusCode) {
		return gitlabError(resp, fmt.Sprintf("creating file %s", repoPath), err)
	}

	_, resp, err = s.client.RepositoryFiles.UpdateFile(s.project.ID, repoPath, &gitlab.UpdateFileOptions{
		Branch:        branch,
		Content:       gitlab.String(body),
		CommitMessage: gitlab.String(fmt.Sprintf("Update %s", repoPath)),
	}, gitlab.WithContext(ctx))
	s.recordCall("update_file", err)
	if err != nil {
		return gitlabError(resp, fmt.Sprintf("updating file %s", repoPath), err)
	}
	return nil
}

func isFileConflict(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (s *GitLabService) PushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string) error {
	if s.project == nil {
		return provision.NewPlatformError(0, "no project bound, resolve or create one first", nil)
	}
	return pushTree(ctx, localDir, targetPrefix, substitutions, s.writeFile)
}

func (s *GitLabService) InitializeFrameworks(ctx context.Context, frameworks []scaffold.Framework, projectName string) error {
	return scaffoldAndPush(ctx, s, frameworks, projectName, s.log)
}

func (s *GitLabService) DeleteRepository(ctx context.Context) error {
	if s.project == nil {
		return nil
	}
	resp, err := s.client.Projects.DeleteProject(s.project.ID, nil, gitlab.WithContext(ctx))
	s.recordCall("delete_project", err)
	if err != nil {
		return gitlabError(resp, fmt.Sprintf("deleting project %d", s.project.ID), err)
	}
	s.log.WithProject(s.project.Path).Info("project deleted")
	s.project = nil
	return nil
}

func (s *GitLabService) PushInfrastructure(ctx context.Context, localPath string, params map[string]string, projectName string) error {
	merged := make(map[string]string, len(params)+1)
	for key, value := range params {
		merged[key] = value
	}
	merged["Name"] = projectName
	return s.PushTree(ctx, localPath, "infrastructure", merged)
}
