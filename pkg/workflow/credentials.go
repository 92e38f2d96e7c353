package workflow

import (
	"fmt"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/provision"
)

// Credential parameter keys merged into platform and stack parameters.
const (
	CredGitHubToken        = "githubToken"
	CredGitHubOrganization = "githubOrganizationName"
	CredGitLabToken        = "gitlabToken"
	CredGitLabBaseURL      = "gitlabBaseUrl"
)

// ResolveCredentials reads the platform's credentials from process
// configuration. Placeholder values left over from configuration
// scaffolding count as absent; a missing credential fails here, before any
// network call. The returned map is built fresh per request and treated as
// secret by every consumer.
func ResolveCredentials(cfg *config.Configs, platformKind string) (map[string]string, error) {
	switch platformKind {
	case provision.PlatformGitHub:
		if !config.HasRealConfigValue(cfg.GitHubToken) {
			return nil, provision.NewCredentialError("GitHub token is missing in configuration")
		}
		if !config.HasRealConfigValue(cfg.GitHubOrganizationName) {
			return nil, provision.NewCredentialError("GitHub organization name is missing in configuration")
		}
		return map[string]string{
			CredGitHubToken:        cfg.GitHubToken,
			CredGitHubOrganization: cfg.GitHubOrganizationName,
		}, nil

	case provision.PlatformGitLab:
		if !config.HasRealConfigValue(cfg.GitLabToken) {
			return nil, provision.NewCredentialError("GitLab token is missing in configuration")
		}
		if !config.HasValidHTTPURL(cfg.GitLabBaseUrl) {
			return nil, provision.NewCredentialError("GitLab base URL is missing in configuration or not an absolute http(s) URL")
		}
		return map[string]string{
			CredGitLabToken:   cfg.GitLabToken,
			CredGitLabBaseURL: cfg.GitLabBaseUrl,
		}, nil

	default:
		return nil, provision.NewValidationError(fmt.Sprintf("Unsupported platform type: %s", platformKind))
	}
}
