package templates

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// manifestSchema constrains template manifests before they enter the
// registry.
const manifestSchema = `
#Manifest: {
	// Name is the template identifier used in requests
	name: string & =~"^[a-z0-9][a-z0-9-]*$"

	// Description explains what the template provisions
	description?: string

	// Parameters documents the accepted parameters
	parameters?: [...#Parameter]
}

#Parameter: {
	name:         string & =~"^[a-zA-Z][a-zA-Z0-9_.-]*$"
	description?: string
	required?:    bool
	default?:     string
	secret?:      bool
}
`

type schemaValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

func newSchemaValidator() (*schemaValidator, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(manifestSchema)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &schemaValidator{ctx: ctx, schema: val.LookupPath(cue.ParsePath("#Manifest"))}, nil
}

// validate unifies the manifest with the schema and checks the result.
func (v *schemaValidator) validate(manifest *Manifest) error {
	data := v.ctx.Encode(manifest)
	if err := data.Err(); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}
