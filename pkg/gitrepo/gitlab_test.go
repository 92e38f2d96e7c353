package gitrepo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

func newTestGitLabService(t *testing.T, handler http.Handler) *GitLabService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	svc, err := NewGitLabService("token", server.URL, logger, nil)
	if err != nil {
		t.Fatalf("NewGitLabService: %v", err)
	}
	svc.sleep = func(time.Duration) {}
	return svc
}

func TestGitLabResolveOrCreateRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected %s /projects", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 42, "path": "shopdemo", "name": "shopdemo"}`)
	})
	mux.HandleFunc("/api/v4/projects/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 42, "path": "shopdemo", "name": "shopdemo",
			"web_url": "https://gitlab.example.com/team/shopdemo",
			"namespace": {"full_path": "team"}}`)
	})

	svc := newTestGitLabService(t, mux)
	handle, err := svc.ResolveOrCreateRepository(context.Background(), CreateOptions{Name: "shopdemo"})
	if err != nil {
		t.Fatalf("ResolveOrCreateRepository: %v", err)
	}
	if handle.ID != 42 || handle.Owner != "team" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if handle.URL != "https://gitlab.example.com/team/shopdemo" {
		t.Fatalf("unexpected url %q", handle.URL)
	}
}

func TestGitLabCreateCollisionResolvesExistingProject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message": {"name": ["has already been taken"]}}`)
		case http.MethodGet:
			if r.URL.Query().Get("search") != "shopdemo" {
				t.Fatalf("expected a search for the colliding name, got %q", r.URL.RawQuery)
			}
			fmt.Fprint(w, `[{"id": 42, "path": "shopdemo", "name": "shopdemo",
				"web_url": "https://gitlab.example.com/team/shopdemo",
				"namespace": {"full_path": "team"}}]`)
		default:
			t.Fatalf("unexpected %s /projects", r.Method)
		}
	})

	svc := newTestGitLabService(t, mux)
	handle, err := svc.ResolveOrCreateRepository(context.Background(), CreateOptions{Name: "shopdemo"})
	if err != nil {
		t.Fatalf("ResolveOrCreateRepository after collision: %v", err)
	}
	if handle.ID != 42 {
		t.Fatalf("expected the existing project to be bound, got %+v", handle)
	}
	if svc.OwnerIdentifier() != "team" {
		t.Fatalf("unexpected owner %q", svc.OwnerIdentifier())
	}
}

func TestGitLabCreateCollisionProjectNotVisible(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message": {"name": ["has already been taken"]}}`)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	svc := newTestGitLabService(t, mux)
	if _, err := svc.ResolveOrCreateRepository(context.Background(), CreateOptions{Name: "shopdemo"}); err == nil {
		t.Fatal("expected an error when the colliding project cannot be found")
	}
}
