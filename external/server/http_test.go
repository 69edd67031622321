package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	extrepo "github.com/foxseedlab/localscribe/external/repository"
	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/convert"
	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/foxseedlab/localscribe/internal/transcriber"
)

type fakeTranscriptions struct {
	runFn      func(src orchestrator.Source) (orchestrator.Completed, error)
	resetErr   error
	current    orchestrator.Stage
	lastError  *orchestrator.Error
	mode       transcriber.Mode
	events     []orchestrator.StageEvent
	gotName    string
	gotBody    string
	resetCalls int
}

func (f *fakeTranscriptions) Run(ctx context.Context, src orchestrator.Source) (orchestrator.Completed, error) {
	f.gotName = src.DisplayName()
	rc, err := src.Open(ctx)
	if err != nil {
		return orchestrator.Completed{}, err
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	f.gotBody = string(body)
	if f.runFn != nil {
		return f.runFn(src)
	}
	return orchestrator.Completed{Text: "hello", ElapsedMs: 42}, nil
}

func (f *fakeTranscriptions) Reset() error {
	f.resetCalls++
	return f.resetErr
}

func (f *fakeTranscriptions) Current() orchestrator.Stage {
	if f.current == nil {
		return orchestrator.Idle{}
	}
	return f.current
}

func (f *fakeTranscriptions) History(since int64) []orchestrator.StageEvent {
	var out []orchestrator.StageEvent
	for _, e := range f.events {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTranscriptions) RunEvents(runID string) []orchestrator.StageEvent {
	var out []orchestrator.StageEvent
	for _, e := range f.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTranscriptions) LastError() (orchestrator.Error, bool) {
	if f.lastError == nil {
		return orchestrator.Error{}, false
	}
	return *f.lastError, true
}

func (f *fakeTranscriptions) Mode() transcriber.Mode {
	if f.mode == "" {
		return transcriber.ModeFast
	}
	return f.mode
}

func (f *fakeTranscriptions) SetMode(mode transcriber.Mode) { f.mode = mode }

func newTestServer(t *testing.T, ft *fakeTranscriptions, runs repository.RunRepository) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	if runs == nil {
		runs = extrepo.NewMemoryRepository(10)
	}
	m := metrics.New()
	h := NewHTTPServer("127.0.0.1:0", ft, runs, m, 1<<20)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func uploadRequest(t *testing.T, url, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(body)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/v1/transcriptions", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doJSON(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestTranscribe_ReturnsText(t *testing.T) {
	ft := &fakeTranscriptions{}
	srv, _ := newTestServer(t, ft, nil)

	var got transcriptionResponse
	status := doJSON(t, uploadRequest(t, srv.URL, "file", "memo.wav", []byte("RIFF....")), &got)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got.Text != "hello" || got.ElapsedMs != 42 {
		t.Fatalf("unexpected response %+v", got)
	}
	if ft.gotName != "memo.wav" || ft.gotBody != "RIFF...." || ft.resetCalls != 0 {
		t.Fatalf("unexpected run input name=%q body=%q resets=%d", ft.gotName, ft.gotBody, ft.resetCalls)
	}
}

func TestTranscribe_MissingFilePart(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTranscriptions{}, nil)

	status := doJSON(t, uploadRequest(t, srv.URL, "attachment", "memo.wav", []byte("x")), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestTranscribe_BusyIsConflict(t *testing.T) {
	ft := &fakeTranscriptions{
		current: orchestrator.Completed{Text: "earlier", ElapsedMs: 10},
		runFn: func(orchestrator.Source) (orchestrator.Completed, error) {
			return orchestrator.Completed{}, orchestrator.ErrBusy
		},
	}
	srv, _ := newTestServer(t, ft, nil)

	var got errorResponse
	status := doJSON(t, uploadRequest(t, srv.URL, "file", "memo.wav", []byte("x")), &got)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if ft.resetCalls != 0 {
		t.Fatalf("upload must not dismiss a finished run, got %d resets", ft.resetCalls)
	}
	if got.Kind != "busy" || got.Stage == nil || got.Stage.Kind != orchestrator.KindCompleted {
		t.Fatalf("expected busy response carrying the finished stage, got %+v", got)
	}
}

func TestTranscribe_FailureCarriesStage(t *testing.T) {
	cause := &convert.Error{Stage: convert.StageDecode, Kind: audio.ErrUnsupportedCodec, Message: "open audio track"}
	ft := &fakeTranscriptions{
		runFn: func(orchestrator.Source) (orchestrator.Completed, error) {
			return orchestrator.Completed{}, cause
		},
		lastError: &orchestrator.Error{Message: "This audio format is not supported.", Cause: cause, FailedStage: orchestrator.KindConvertingAudio},
	}
	srv, _ := newTestServer(t, ft, nil)

	var got errorResponse
	status := doJSON(t, uploadRequest(t, srv.URL, "file", "clip.ogg", []byte("OggS")), &got)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if got.Kind != "unsupported_codec" || got.Stage == nil || got.Stage.FailedStage != orchestrator.KindConvertingAudio {
		t.Fatalf("unexpected error response %+v", got)
	}
}

func TestStageEventsAndReset(t *testing.T) {
	ft := &fakeTranscriptions{
		current: orchestrator.Completed{Text: "done", ElapsedMs: 7},
		events: []orchestrator.StageEvent{
			{Seq: 1, Stage: orchestrator.StageView{Kind: orchestrator.KindIdle}},
			{Seq: 2, Stage: orchestrator.StageView{Kind: orchestrator.KindReceivingFile}},
			{Seq: 3, Stage: orchestrator.StageView{Kind: orchestrator.KindCompleted}},
		},
	}
	srv, _ := newTestServer(t, ft, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/stage", nil)
	var stage orchestrator.StageView
	if status := doJSON(t, req, &stage); status != http.StatusOK || stage.Kind != orchestrator.KindCompleted || stage.Text != "done" {
		t.Fatalf("unexpected stage %d %+v", status, stage)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/events?since=1", nil)
	var events struct {
		Events []orchestrator.StageEvent `json:"events"`
		Next   int64                     `json:"next"`
	}
	if status := doJSON(t, req, &events); status != http.StatusOK || len(events.Events) != 2 || events.Next != 3 {
		t.Fatalf("unexpected events %d %+v", status, events)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/events?since=-4", nil)
	if status := doJSON(t, req, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative since, got %d", status)
	}

	ft.resetErr = orchestrator.ErrNotResettable
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/reset", nil)
	if status := doJSON(t, req, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 from reset, got %d", status)
	}
}

func TestRunEvents(t *testing.T) {
	ft := &fakeTranscriptions{
		events: []orchestrator.StageEvent{
			{Seq: 1, RunID: "run-a", Stage: orchestrator.StageView{Kind: orchestrator.KindReceivingFile}},
			{Seq: 2, RunID: "run-b", Stage: orchestrator.StageView{Kind: orchestrator.KindReceivingFile}},
			{Seq: 3, RunID: "run-a", Stage: orchestrator.StageView{Kind: orchestrator.KindCompleted}},
		},
	}
	srv, _ := newTestServer(t, ft, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/runs/run-a/events", nil)
	var got struct {
		Events []orchestrator.StageEvent `json:"events"`
	}
	if status := doJSON(t, req, &got); status != http.StatusOK || len(got.Events) != 2 || got.Events[1].Seq != 3 {
		t.Fatalf("unexpected run events %d %+v", status, got)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/runs/missing/events", nil)
	if status := doJSON(t, req, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", status)
	}
}

func TestMode(t *testing.T) {
	ft := &fakeTranscriptions{}
	srv, _ := newTestServer(t, ft, nil)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/mode", strings.NewReader(`{"mode":"accurate"}`))
	var got modeRequest
	if status := doJSON(t, req, &got); status != http.StatusOK || got.Mode != "accurate" {
		t.Fatalf("unexpected mode response %d %+v", status, got)
	}
	if ft.mode != transcriber.ModeAccurate {
		t.Fatalf("expected mode to be applied, got %q", ft.mode)
	}

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/v1/mode", strings.NewReader(`{"mode":"turbo"}`))
	if status := doJSON(t, req, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", status)
	}
}

func TestRuns(t *testing.T) {
	runs := extrepo.NewMemoryRepository(10)
	now := time.Now()
	for i, id := range []string{"run-1", "run-2"} {
		finished := now.Add(time.Duration(i) * time.Second)
		if _, err := runs.SaveRun(context.Background(), repository.SaveRunInput{
			ID:         id,
			Status:     repository.RunStatusCompleted,
			StartedAt:  now,
			FinishedAt: finished,
		}); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	srv, _ := newTestServer(t, &fakeTranscriptions{}, runs)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/runs?limit=1", nil)
	var list struct {
		Runs []runResponse `json:"runs"`
	}
	if status := doJSON(t, req, &list); status != http.StatusOK || len(list.Runs) != 1 || list.Runs[0].ID != "run-2" {
		t.Fatalf("unexpected runs %d %+v", status, list)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/runs/run-1", nil)
	var one runResponse
	if status := doJSON(t, req, &one); status != http.StatusOK || one.ID != "run-1" || one.Status != "completed" {
		t.Fatalf("unexpected run %d %+v", status, one)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/runs/missing", nil)
	if status := doJSON(t, req, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, m := newTestServer(t, &fakeTranscriptions{}, nil)
	m.RecordHTTPRequest(http.MethodGet, "/healthz", "200", 0.01)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `endpoint="/healthz"`) {
		t.Fatalf("expected http request metric for /healthz, got:\n%s", body)
	}
}
