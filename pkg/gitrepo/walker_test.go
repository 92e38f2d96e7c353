package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPushTreeSkipsDependencyCaches(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "index.ts", "export {};")
	writeTestFile(t, root, "src/app.ts", "app")
	writeTestFile(t, root, "node_modules/pkg/index.js", "dep")
	writeTestFile(t, root, "bin/out", "bin")
	writeTestFile(t, root, "obj/cache", "obj")
	writeTestFile(t, root, ".git/HEAD", "ref")

	var pushed []string
	write := func(ctx context.Context, repoPath string, content []byte) error {
		pushed = append(pushed, repoPath)
		return nil
	}
	if err := pushTree(context.Background(), root, "react", nil, write); err != nil {
		t.Fatalf("pushTree: %v", err)
	}

	sort.Strings(pushed)
	want := []string{"react/index.ts", "react/src/app.ts"}
	if len(pushed) != len(want) {
		t.Fatalf("pushed %v, want %v", pushed, want)
	}
	for i := range want {
		if pushed[i] != want[i] {
			t.Fatalf("pushed %v, want %v", pushed, want)
		}
	}
}

func TestPushTreeAppliesSubstitutions(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "Pulumi.yaml", "name: {{Name}}\n")

	contents := map[string]string{}
	write := func(ctx context.Context, repoPath string, content []byte) error {
		contents[repoPath] = string(content)
		return nil
	}
	subs := map[string]string{"Name": "shopdemo"}
	if err := pushTree(context.Background(), root, "infrastructure", subs, write); err != nil {
		t.Fatalf("pushTree: %v", err)
	}
	if got := contents["infrastructure/Pulumi.yaml"]; got != "name: shopdemo\n" {
		t.Fatalf("substitution not applied, got %q", got)
	}
}

func TestNormalizeGitLabBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://gitlab.example.com", "https://gitlab.example.com/api/v4", false},
		{"https://gitlab.example.com/", "https://gitlab.example.com/api/v4", false},
		{"https://gitlab.example.com/api/v4", "https://gitlab.example.com/api/v4", false},
		{"http://gitlab.internal:8080", "http://gitlab.internal:8080/api/v4", false},
		{"gitlab.example.com", "", true},
		{"ftp://gitlab.example.com", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeGitLabBaseURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("NormalizeGitLabBaseURL(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeGitLabBaseURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizeGitLabBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
