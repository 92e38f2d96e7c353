package provision

import (
	"fmt"
	"strings"
)

// ProjectRequest is the inbound project provisioning request.
type ProjectRequest struct {
	// TemplateName identifies the infrastructure template to provision.
	TemplateName string `json:"templateName" validate:"required"`

	// ProjectName is the name of the project and its repository.
	ProjectName string `json:"projectName" validate:"required"`

	// Parameters is an arbitrary nested parameter map. Nested objects are
	// flattened to dotted keys before reaching the stack runner.
	Parameters map[string]interface{} `json:"parameters"`

	// Platform optionally declares the source-control platform.
	Platform *PlatformConfig `json:"platform"`
}

// PlatformConfig declares a source-control platform and its settings.
type PlatformConfig struct {
	// Type is the platform kind, matched case-insensitively
	// against the supported adapters.
	Type string `json:"type" validate:"required"`

	// Config carries platform-specific settings.
	Config map[string]string `json:"config"`
}

// Kind returns the normalized platform kind.
func (p *PlatformConfig) Kind() string {
	return strings.ToLower(strings.TrimSpace(p.Type))
}

// Platform kinds with a source-control adapter.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
)

// ResourceRequest asks for a single resource type to be applied
// without the repository workflow around it.
type ResourceRequest struct {
	// ProjectName scopes the stack identity.
	ProjectName string `json:"projectName" validate:"required"`

	// ResourceType selects the platform program to execute.
	ResourceType string `json:"resourceType" validate:"required"`

	// Parameters become stack configuration after flattening.
	Parameters map[string]interface{} `json:"parameters"`
}

// Validate checks the request invariants that must hold before any
// side effect occurs.
func (r *ProjectRequest) Validate() error {
	if strings.TrimSpace(r.TemplateName) == "" {
		return NewValidationError("templateName must not be empty")
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		return NewValidationError("projectName must not be empty")
	}
	if r.Platform != nil && r.Platform.Kind() == "" {
		return NewValidationError("platform.type must not be empty")
	}
	return nil
}

// FlattenParameters flattens a nested parameter map into dotted string keys.
// Nested maps recurse with a "parent.child" key; scalar values are formatted
// with fmt. A nil map flattens to an empty map.
func FlattenParameters(params map[string]interface{}) map[string]string {
	out := make(map[string]string, len(params))
	flattenInto(out, "", params)
	return out
}

func flattenInto(out map[string]string, prefix string, params map[string]interface{}) {
	for key, value := range params {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			flattenInto(out, full, v)
		case string:
			out[full] = v
		case nil:
			// nil parameters are dropped rather than rendered as "<nil>"
		default:
			out[full] = fmt.Sprintf("%v", v)
		}
	}
}
