package stack

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// manifestNames are the program manifest filenames probed in a workdir.
var manifestNames = []string{"Pulumi.yaml", "Pulumi.yml"}

type programManifest struct {
	Name    string `yaml:"name"`
	Runtime string `yaml:"runtime"`
}

// ProgramNamespace reads the program name from the engine manifest in
// workdir, if one is present. The name is the namespace unqualified
// configuration keys are persisted under; without a manifest the namespace
// is empty and keys stay unqualified.
func ProgramNamespace(workdir string) (string, error) {
	for _, name := range manifestNames {
		data, err := os.ReadFile(filepath.Join(workdir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("reading program manifest: %w", err)
		}
		var manifest programManifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return "", fmt.Errorf("parsing program manifest %s: %w", name, err)
		}
		if manifest.Name == "" {
			return "", fmt.Errorf("program manifest %s has no name", name)
		}
		return manifest.Name, nil
	}
	return "", nil
}
