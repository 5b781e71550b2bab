package tryon

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tryonworks/broker/internal/artifacts"
	"github.com/tryonworks/broker/internal/job"
	"github.com/tryonworks/broker/internal/keys"
	"github.com/tryonworks/broker/internal/kling"
)

// fakeRemote serves the vendor contract: POST / submits, GET /{task}
// reports status, GET /image.png serves the generated artifact.
func fakeRemote(t *testing.T, statuses []string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	var polls int

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"data":{"task_id":"task-1"}}`)
		case strings.HasSuffix(r.URL.Path, "/image.png"):
			w.Write([]byte("generated image"))
		default:
			mu.Lock()
			status := statuses[len(statuses)-1]
			if polls < len(statuses) {
				status = statuses[polls]
			}
			polls++
			mu.Unlock()

			if status == "completed" {
				fmt.Fprintf(w, `{"data":{"status":"completed","output":{"works":[{"image":{"resource":"%s/image.png"}}]}}}`, srv.URL)
				return
			}
			fmt.Fprintf(w, `{"data":{"status":"%s"}}`, status)
		}
	}))
	return srv
}

func newTestRunner(t *testing.T, remoteURL string, opts Options) (*Runner, *job.Store, *artifacts.Store) {
	t.Helper()
	store := job.NewStore()
	rotator, err := keys.NewRotator([]string{"key-1", "key-2"})
	if err != nil {
		t.Fatalf("create rotator: %v", err)
	}
	artifactStore, err := artifacts.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create artifact store: %v", err)
	}
	client := kling.NewClient(remoteURL, 5*time.Millisecond)
	return NewRunner(store, client, rotator, artifacts.NewFetcher(artifactStore), opts), store, artifactStore
}

func waitTerminal(t *testing.T, store *job.Store, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestRunner_CompletedJob(t *testing.T) {
	srv := fakeRemote(t, []string{"pending", "running", "completed"})
	defer srv.Close()

	runner, store, artifactStore := newTestRunner(t, srv.URL, Options{BaseURL: "http://broker.example"})

	j := runner.StartJob("m.jpg", "d.jpg")
	if j.ID == "" {
		t.Fatal("expected job id")
	}

	// The submission path must not wait for the remote work.
	initial, _ := store.Get(j.ID)
	if initial.Status != job.StatusPending && initial.Status != job.StatusProcessing {
		t.Errorf("expected pending or processing right after submit, got %s", initial.Status)
	}

	final := waitTerminal(t, store, j.ID)
	if final.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
	}
	if final.ImageURL != "http://broker.example/static/"+j.ID+".png" {
		t.Errorf("unexpected image url: %s", final.ImageURL)
	}
	if final.ResultText == "" {
		t.Error("expected result text")
	}
	if final.ExternalTaskID != "task-1" {
		t.Errorf("expected external task id, got %s", final.ExternalTaskID)
	}
	if !artifactStore.Exists(j.ID + ".png") {
		t.Error("expected artifact on disk")
	}
}

func TestRunner_SubmissionFailure(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	runner, store, _ := newTestRunner(t, srv.URL, Options{})

	j := runner.StartJob("m.jpg", "d.jpg")
	final := waitTerminal(t, store, j.ID)

	if final.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error == "" {
		t.Error("expected error message")
	}
	if attempts != 1 {
		t.Errorf("expected a single submission attempt, got %d", attempts)
	}
}

func TestRunner_RemoteTaskFails(t *testing.T) {
	srv := fakeRemote(t, []string{"processing", "failed"})
	defer srv.Close()

	runner, store, _ := newTestRunner(t, srv.URL, Options{})

	j := runner.StartJob("m.jpg", "d.jpg")
	final := waitTerminal(t, store, j.ID)

	if final.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "failed") {
		t.Errorf("expected raw status in error, got %q", final.Error)
	}
}

func TestRunner_FetchFailureFailsJob(t *testing.T) {
	// Completed task pointing at an image URL that 404s.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"data":{"task_id":"task-1"}}`)
		case strings.HasSuffix(r.URL.Path, "/image.png"):
			http.NotFound(w, r)
		default:
			fmt.Fprintf(w, `{"data":{"status":"completed","output":{"works":[{"image":{"resource":"%s/image.png"}}]}}}`, srv.URL)
		}
	}))
	defer srv.Close()

	runner, store, artifactStore := newTestRunner(t, srv.URL, Options{})

	j := runner.StartJob("m.jpg", "d.jpg")
	final := waitTerminal(t, store, j.ID)

	if final.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "download") {
		t.Errorf("expected download failure in error, got %q", final.Error)
	}
	if artifactStore.Exists(j.ID + ".png") {
		t.Error("expected no artifact for a failed fetch")
	}
}

func TestRunner_ConcurrentJobsIndependent(t *testing.T) {
	good := fakeRemote(t, []string{"completed"})
	defer good.Close()

	runner, store, _ := newTestRunner(t, good.URL, Options{})

	const n = 8
	seen := make(map[string]bool)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		j := runner.StartJob("m.jpg", "d.jpg")
		if seen[j.ID] {
			t.Fatalf("duplicate job id: %s", j.ID)
		}
		seen[j.ID] = true
		ids = append(ids, j.ID)
	}

	for _, id := range ids {
		final := waitTerminal(t, store, id)
		if final.Status != job.StatusCompleted {
			t.Errorf("job %s: expected completed, got %s (%s)", id, final.Status, final.Error)
		}
	}
}

func TestRunner_SubmitRetriesOptIn(t *testing.T) {
	var attempts int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			attempts++
			if attempts == 1 {
				http.Error(w, "try again", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"data":{"task_id":"task-1"}}`)
		case strings.HasSuffix(r.URL.Path, "/image.png"):
			w.Write([]byte("generated image"))
		default:
			fmt.Fprintf(w, `{"data":{"status":"completed","output":{"works":[{"image":{"resource":"%s/image.png"}}]}}}`, srv.URL)
		}
	}))
	defer srv.Close()

	runner, store, _ := newTestRunner(t, srv.URL, Options{SubmitRetries: 1})

	j := runner.StartJob("m.jpg", "d.jpg")
	final := waitTerminal(t, store, j.ID)

	if final.Status != job.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", final.Status, final.Error)
	}
	if attempts != 2 {
		t.Errorf("expected 2 submission attempts, got %d", attempts)
	}
}

func TestRunner_PollTimeout(t *testing.T) {
	srv := fakeRemote(t, []string{"pending"})
	defer srv.Close()

	runner, store, _ := newTestRunner(t, srv.URL, Options{PollTimeout: 30 * time.Millisecond})

	j := runner.StartJob("m.jpg", "d.jpg")
	final := waitTerminal(t, store, j.ID)

	if final.Status != job.StatusFailed {
		t.Fatalf("expected failed on poll timeout, got %s", final.Status)
	}
}
