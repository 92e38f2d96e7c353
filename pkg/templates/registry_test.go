package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

func writeManifest(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "templates", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "template.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newTestRegistry(t *testing.T, root string) *Registry {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	registry, err := NewRegistry(root, logger)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func TestRegistryScanAndList(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "ecommerce", `
name: ecommerce
description: E-commerce starter with cluster and storefront
parameters:
  - name: region
    required: true
  - name: dbPassword
    secret: true
`)
	writeManifest(t, root, "blog", `
name: blog
description: Static blog
`)

	registry := newTestRegistry(t, root)
	manifests := registry.List()
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}
	if manifests[0].Name != "blog" || manifests[1].Name != "ecommerce" {
		t.Fatalf("manifests not sorted by name: %v", manifests)
	}

	ecommerce, ok := registry.Get("ecommerce")
	if !ok {
		t.Fatalf("ecommerce manifest missing")
	}
	if len(ecommerce.Parameters) != 2 || !ecommerce.Parameters[1].Secret {
		t.Fatalf("parameters not parsed: %+v", ecommerce.Parameters)
	}
}

func TestRegistrySkipsInvalidManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "good", "name: good\n")
	// Uppercase names violate the schema.
	writeManifest(t, root, "bad", "name: BadName\n")

	registry := newTestRegistry(t, root)
	if _, ok := registry.Get("good"); !ok {
		t.Fatalf("valid manifest must survive an invalid sibling")
	}
	if _, ok := registry.Get("BadName"); ok {
		t.Fatalf("invalid manifest must be skipped")
	}
}

func TestRegistryRejectsNameDirectoryMismatch(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "somedir", "name: othername\n")

	registry := newTestRegistry(t, root)
	if len(registry.List()) != 0 {
		t.Fatalf("manifest with mismatched directory must be skipped")
	}
}

func TestRegistryLocate(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "ecommerce", "name: ecommerce\n")
	platformDir := filepath.Join(root, "platforms", "aks")
	if err := os.MkdirAll(platformDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	registry := newTestRegistry(t, root)

	dir, err := registry.Locate("ecommerce")
	if err != nil {
		t.Fatalf("Locate template: %v", err)
	}
	if dir != filepath.Join(root, "templates", "ecommerce") {
		t.Fatalf("unexpected template dir %q", dir)
	}

	dir, err = registry.Locate("aks")
	if err != nil {
		t.Fatalf("Locate platform: %v", err)
	}
	if dir != platformDir {
		t.Fatalf("unexpected platform dir %q", dir)
	}

	if _, err := registry.Locate("nosuch"); !provision.IsNotFound(err) {
		t.Fatalf("unknown identifier must fail with a not-found error, got %v", err)
	}
}
