package fal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mutsucloud/otogi/pkg/provider/videogen"
)

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
}

func TestNew_WithModel(t *testing.T) {
	p, err := New("key", WithModel("fal-ai/minimax-video"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "fal-ai/minimax-video" {
		t.Errorf("expected custom model, got %q", p.model)
	}
}

func TestSubmit_EmptyPrompt(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Submit(context.Background(), videogen.Request{}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

// ---- Status polling against a stub queue ----

// queueStub serves the status and response endpoints for a single fake job.
type queueStub struct {
	status     string // queue status JSON value
	resultBody string // body of the response endpoint
}

func (q *queueStub) start(t *testing.T) (statusURL, responseURL string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Key test-key" {
			t.Errorf("status request Authorization = %q", got)
		}
		w.Write([]byte(`{"status":"` + q.status + `"}`))
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(q.resultBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/status", srv.URL + "/result"
}

func TestCheckStatus_InProgress(t *testing.T) {
	stub := &queueStub{status: "IN_PROGRESS"}
	statusURL, responseURL := stub.start(t)

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.CheckStatus(context.Background(), &videogen.Submission{
		TaskID: "job-1", StatusURL: statusURL, ResponseURL: responseURL,
	})
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.State != videogen.StateProcessing {
		t.Errorf("State = %v, want processing", st.State)
	}
}

func TestCheckStatus_Completed(t *testing.T) {
	stub := &queueStub{
		status:     "COMPLETED",
		resultBody: `{"video":{"url":"https://v3.fal.media/files/out.mp4"}}`,
	}
	statusURL, responseURL := stub.start(t)

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.CheckStatus(context.Background(), &videogen.Submission{
		TaskID: "job-2", StatusURL: statusURL, ResponseURL: responseURL,
	})
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.State != videogen.StateSucceeded {
		t.Fatalf("State = %v, want succeeded", st.State)
	}
	if st.VideoURL != "https://v3.fal.media/files/out.mp4" {
		t.Errorf("VideoURL = %q", st.VideoURL)
	}
}

func TestCheckStatus_CompletedWithoutVideo(t *testing.T) {
	stub := &queueStub{
		status:     "COMPLETED",
		resultBody: `{"detail":"content policy violation"}`,
	}
	statusURL, responseURL := stub.start(t)

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.CheckStatus(context.Background(), &videogen.Submission{
		TaskID: "job-3", StatusURL: statusURL, ResponseURL: responseURL,
	})
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.State != videogen.StateFailed {
		t.Fatalf("State = %v, want failed", st.State)
	}
	if st.Reason != "content policy violation" {
		t.Errorf("Reason = %q", st.Reason)
	}
}

func TestCheckStatus_UnexpectedQueueStatus(t *testing.T) {
	stub := &queueStub{status: "CANCELLED"}
	statusURL, responseURL := stub.start(t)

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.CheckStatus(context.Background(), &videogen.Submission{
		TaskID: "job-4", StatusURL: statusURL, ResponseURL: responseURL,
	})
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.State != videogen.StateFailed {
		t.Fatalf("State = %v, want failed", st.State)
	}
	if !strings.Contains(st.Reason, "CANCELLED") {
		t.Errorf("Reason = %q, want queue status included", st.Reason)
	}
}

func TestCheckStatus_MissingStatusURL(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.CheckStatus(context.Background(), &videogen.Submission{TaskID: "job-5"}); err == nil {
		t.Error("expected error for submission without status URL")
	}
	if _, err := p.CheckStatus(context.Background(), nil); err == nil {
		t.Error("expected error for nil submission")
	}
}

func TestCheckStatus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.CheckStatus(context.Background(), &videogen.Submission{
		TaskID: "job-6", StatusURL: srv.URL + "/status", ResponseURL: srv.URL + "/result",
	})
	if err == nil {
		t.Fatal("expected error for 404 status endpoint")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry status code, got: %v", err)
	}
}
