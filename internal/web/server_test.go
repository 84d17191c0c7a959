package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/dataimport/internal/config"
	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/store"
)

var contacts = core.TableSchema{
	Key:   "contacts",
	Label: "Contacts",
	Group: "crm",
	Columns: []core.TargetColumn{
		{Key: "name", Label: "Name", Type: core.TypeString, Required: true},
		{Key: "email", Label: "Email", Type: core.TypeEmail, Unique: true},
	},
}

const contactsCSV = "name,email\nAda,ada@example.com\nGrace,grace@example.com\n"

func TestMain(m *testing.M) {
	core.Clear()
	if err := core.Register(contacts); err != nil {
		fmt.Fprintln(os.Stderr, "register contacts:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type instantSink struct{}

func (instantSink) Import(ctx context.Context, rows []core.MappedRow, opts core.SinkOptions) (core.SinkResult, error) {
	return core.SinkResult{ImportedRows: len(rows)}, nil
}

func (instantSink) PollStatus(ctx context.Context, jobID string) (core.ImportJob, error) {
	return core.ImportJob{}, nil
}

func (instantSink) Cancel(ctx context.Context, jobID string) error {
	return nil
}

type actorPerms map[string]core.Permission

func (p actorPerms) Lookup(ctx context.Context, actor, table string) (core.Permission, error) {
	if perm, ok := p[actor]; ok {
		return perm, nil
	}
	return core.Permission{}, nil
}

var importer = core.Permission{CanImport: true, CanValidate: true, CanPreview: true}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, MaxRows: 1000, BatchSize: 100},
		Permission: config.PermissionConfig{
			DefaultCanValidate: true,
			DefaultCanPreview:  true,
		},
	}
}

type testEnv struct {
	srv     *Server
	ctrl    *core.Controller
	history *store.Store
}

func newTestEnv(t *testing.T, cfg *config.Config, perms PermissionSource) *testEnv {
	t.Helper()
	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctrl := core.NewController(instantSink{}, core.ControllerConfig{
		SlotWait: time.Second,
		Recorder: hist,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := NewServer(ctrl, perms, hist, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ctrl.Shutdown(ctx)
		hist.Close()
	})
	return &testEnv{srv: srv, ctrl: ctrl, history: hist}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, actor string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	return req
}

func uploadRequest(t *testing.T, path, actor string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForStatus(t *testing.T, ctrl *core.Controller, id string, want core.JobStatus) core.ImportJob {
	t.Helper()
	var job core.ImportJob
	waitUntil(t, "status "+string(want), func() bool {
		job, _ = ctrl.Job(id)
		return job.Status == want
	})
	return job
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestTables(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"list", "/api/tables", http.StatusOK, `"contacts"`},
		{"get", "/api/tables/contacts", http.StatusOK, `"email"`},
		{"unknown", "/api/tables/nope", http.StatusNotFound, `"TBL002"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s missing %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAutoMap(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/automap", "", map[string]any{
		"table":   "contacts",
		"headers": []string{"Name", "EMAIL", "Notes"},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decode[autoMapResponse](t, rec)
	if len(resp.Mappings) != 3 {
		t.Fatalf("got %d mappings, want 3", len(resp.Mappings))
	}
	if resp.Mappings[0].TargetColumn != "name" || resp.Mappings[1].TargetColumn != "email" {
		t.Errorf("mappings = %+v", resp.Mappings)
	}
	if len(resp.Warnings) == 0 {
		t.Error("expected an unmapped-column warning for Notes")
	}

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/automap", "", map[string]any{"headers": []string{"a"}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing table status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := decode[ErrorResponse](t, rec).Code; got != codeBadRequest {
		t.Errorf("code = %s, want %s", got, codeBadRequest)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/validate", "", map[string]any{
		"table": "contacts",
		"rows": []map[string]any{
			{"name": "Ada", "email": "ada@example.com"},
			{"name": "Bob", "email": "not-an-email"},
		},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	res := decode[core.ValidationResult](t, rec)
	if res.TotalRows != 2 || res.ValidRows != 1 || res.ErrorRows != 1 {
		t.Errorf("result totals = %d/%d/%d, want 2/1/1", res.TotalRows, res.ValidRows, res.ErrorRows)
	}
	if res.IsValid {
		t.Error("IsValid = true, want false")
	}
}

func TestValidateEndpoint_Denied(t *testing.T) {
	cfg := testConfig()
	cfg.Permission.DefaultCanValidate = false
	env := newTestEnv(t, cfg, nil)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/validate", "", map[string]any{
		"table": "contacts",
		"rows":  []map[string]any{{"name": "Ada"}},
	}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if got := decode[ErrorResponse](t, rec).Code; got != "POL008" {
		t.Errorf("code = %s, want POL008", got)
	}
}

func TestParseEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	req := uploadRequest(t, "/api/parse", "", map[string]string{"table": "contacts"}, "people.csv", contactsCSV)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decode[parseResponse](t, rec)
	if resp.Parsed.Format != core.FormatCSV || resp.Parsed.TotalRows != 2 {
		t.Errorf("parsed = %s with %d rows, want csv with 2", resp.Parsed.Format, resp.Parsed.TotalRows)
	}
	if resp.Preview == nil || resp.Preview.ValidRows != 2 {
		t.Errorf("preview = %+v, want 2 valid rows", resp.Preview)
	}
}

func TestParseEndpoint_BadInput(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"empty file", uploadRequest(t, "/api/parse", "", nil, "empty.csv", ""), http.StatusUnprocessableEntity, "PARSE001"},
		{"bad options", uploadRequest(t, "/api/parse", "", map[string]string{"options": "{"}, "a.csv", contactsCSV), http.StatusBadRequest, codeBadRequest},
		{"bad duplicate action", uploadRequest(t, "/api/parse", "", map[string]string{"options": `{"onDuplicate":"merge"}`}, "a.csv", contactsCSV), http.StatusBadRequest, codeBadRequest},
		{"no file", jsonRequest(http.MethodPost, "/api/parse", "", nil), http.StatusBadRequest, codeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestSubmitImport(t *testing.T) {
	env := newTestEnv(t, testConfig(), actorPerms{"alice": importer})

	req := uploadRequest(t, "/api/imports", "alice", map[string]string{"table": "contacts"}, "people.csv", contactsCSV)
	rec := env.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	job := decode[core.ImportJob](t, rec)
	if job.Actor != "alice" || job.Table != "contacts" {
		t.Errorf("job = %+v", job)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/imports/"+job.ID {
		t.Errorf("Location = %q", loc)
	}

	done := waitForStatus(t, env.ctrl, job.ID, core.StatusCompleted)
	if done.ProcessedRows != 2 {
		t.Errorf("ProcessedRows = %d, want 2", done.ProcessedRows)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/imports/"+job.ID, nil))
	if got := decode[core.ImportJob](t, rec); got.Status != core.StatusCompleted {
		t.Errorf("GET status = %s, want completed", got.Status)
	}

	waitUntil(t, "history record", func() bool {
		_, err := env.history.GetJob(context.Background(), job.ID)
		return err == nil
	})
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/history?table=contacts", nil))
	page := decode[store.HistoryPage](t, rec)
	if page.TotalCount != 1 || page.Jobs[0].ID != job.ID {
		t.Errorf("history = %+v", page)
	}

	waitUntil(t, "completed event", func() bool {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/history/"+job.ID+"/events", nil))
		return strings.Contains(rec.Body.String(), string(core.ActionImportCompleted))
	})
}

func TestSubmitImport_Errors(t *testing.T) {
	env := newTestEnv(t, testConfig(), actorPerms{"alice": importer})

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"missing table", uploadRequest(t, "/api/imports", "alice", nil, "a.csv", contactsCSV), http.StatusBadRequest, codeBadRequest},
		{"unknown table", uploadRequest(t, "/api/imports", "alice", map[string]string{"table": "nope"}, "a.csv", contactsCSV), http.StatusNotFound, "TBL002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestSubmitImport_PolicyDenied(t *testing.T) {
	env := newTestEnv(t, testConfig(), actorPerms{})

	rec := env.do(t, uploadRequest(t, "/api/imports", "mallory", map[string]string{"table": "contacts"}, "a.csv", contactsCSV))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	job := decode[core.ImportJob](t, rec)
	if job.Status != core.StatusFailed || job.ErrorCode != "POL001" {
		t.Errorf("job status/code = %s/%s, want failed/POL001", job.Status, job.ErrorCode)
	}
}

func TestImportLifecycleEndpoints(t *testing.T) {
	submitter := importer
	submitter.RequireApproval = true
	submitter.CanApprove = true
	reviewer := importer
	reviewer.CanApprove = true
	env := newTestEnv(t, testConfig(), actorPerms{"alice": submitter, "bob": reviewer, "carol": importer})

	rec := env.do(t, uploadRequest(t, "/api/imports", "alice", map[string]string{"table": "contacts"}, "a.csv", contactsCSV))
	job := decode[core.ImportJob](t, rec)
	waitUntil(t, "approval hold", func() bool {
		j, _ := env.ctrl.Job(job.ID)
		return j.AwaitingApproval
	})

	denied := []struct {
		actor   string
		wantErr string
	}{
		{"alice", "POL010"},
		{"carol", "POL009"},
	}
	for _, tt := range denied {
		rec := env.do(t, jsonRequest(http.MethodPost, "/api/imports/"+job.ID+"/approve", tt.actor, map[string]string{"approver": "bob"}))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s approve status = %d, want %d: %s", tt.actor, rec.Code, http.StatusForbidden, rec.Body.String())
		}
		if got := decode[ErrorResponse](t, rec).Code; got != tt.wantErr {
			t.Errorf("%s approve code = %s, want %s", tt.actor, got, tt.wantErr)
		}
	}
	if j, _ := env.ctrl.Job(job.ID); !j.AwaitingApproval || j.ApprovedBy != "" {
		t.Fatalf("after denied approvals: awaiting=%t approvedBy=%q, want held", j.AwaitingApproval, j.ApprovedBy)
	}

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/imports/"+job.ID+"/approve", "bob", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := decode[core.ImportJob](t, rec).ApprovedBy; got != "bob" {
		t.Errorf("ApprovedBy = %q, want bob", got)
	}
	waitForStatus(t, env.ctrl, job.ID, core.StatusCompleted)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{"approve again", http.MethodPost, "/api/imports/" + job.ID + "/approve", http.StatusConflict, "JOB006"},
		{"retry completed", http.MethodPost, "/api/imports/" + job.ID + "/retry", http.StatusConflict, "JOB002"},
		{"cancel completed", http.MethodPost, "/api/imports/" + job.ID + "/cancel", http.StatusConflict, "JOB003"},
		{"cancel unknown", http.MethodPost, "/api/imports/missing/cancel", http.StatusNotFound, "JOB001"},
		{"history unknown", http.MethodGet, "/api/history/missing", http.StatusNotFound, "HIST002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(tt.method, tt.path, "bob", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/imports/stats", nil))
	stats := decode[core.Statistics](t, rec)
	if stats.TotalJobs != 1 || stats.ByStatus[core.StatusCompleted] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/imports?status=completed", nil))
	if got := decode[map[string]any](t, rec)["count"]; got != 1.0 {
		t.Errorf("list count = %v, want 1", got)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/imports/completed", nil))
	if got := decode[map[string]int](t, rec)["cleared"]; got != 1 {
		t.Errorf("cleared = %d, want 1", got)
	}
}

func TestImportProgressStream(t *testing.T) {
	env := newTestEnv(t, testConfig(), actorPerms{"alice": importer})

	rec := env.do(t, uploadRequest(t, "/api/imports", "alice", map[string]string{"table": "contacts"}, "a.csv", contactsCSV))
	job := decode[core.ImportJob](t, rec)
	waitForStatus(t, env.ctrl, job.ID, core.StatusCompleted)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/imports/"+job.ID+"/progress", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 100\nevent: progress") {
		t.Errorf("stream missing final progress event: %q", body)
	}
	if !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream does not end with complete event: %q", body)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/imports/missing/progress", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRateLimitAndAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	env := newTestEnv(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.RemoteAddr = "192.0.2.1:1000"
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.RemoteAddr = "192.0.2.1:1000"
	req.Header.Set("X-API-Key", "secret")
	if rec := env.do(t, req); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.RemoteAddr = "192.0.2.2:1000"
	req.Header.Set("X-API-Key", "secret")
	if rec := env.do(t, req); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"parse", &core.ParseError{Code: "PARSE001"}, http.StatusUnprocessableEntity},
		{"policy", &core.PolicyViolation{Code: "POL001"}, http.StatusForbidden},
		{"not found", core.ErrJobNotFound, http.StatusNotFound},
		{"history not found", store.ErrNotFound, http.StatusNotFound},
		{"terminal", core.ErrJobTerminal, http.StatusConflict},
		{"busy", core.ErrTooManyImports, http.StatusServiceUnavailable},
		{"bad request", badRequest(io.EOF, "x", "y"), http.StatusBadRequest},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
