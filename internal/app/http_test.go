package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskhub/api/internal/config"
	"taskhub/api/internal/metrics"
	"taskhub/api/internal/ratelimit"
)

func newTestServer(fs *fakeStore) http.Handler {
	return NewHTTPServer(newTestService(fs), "*", ServerOptions{}).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func signupOverHTTP(t *testing.T, h http.Handler, identity string, categories ...string) {
	t.Helper()
	templates := make([]map[string]string, 0, len(categories))
	for _, name := range categories {
		templates = append(templates, map[string]string{"name": name, "color": "#222222"})
	}
	rr := doJSON(t, h, http.MethodPost, "/api/signup/", map[string]any{
		"identity":     identity,
		"display_name": identity,
		"categorys":    templates,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %s", identity, rr.Code, rr.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	rr := doJSON(t, newTestServer(newFakeStore()), http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if response := decodeObject(t, rr); response["ok"] != true {
		t.Errorf("expected ok=true, got %v", response["ok"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestReadyEndpoint(t *testing.T) {
	fs := newFakeStore()
	h := newTestServer(fs)

	rr := doJSON(t, h, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK || decodeObject(t, rr)["status"] != "ready" {
		t.Fatalf("expected ready, got %d %s", rr.Code, rr.Body.String())
	}

	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	rr = doJSON(t, h, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	response := decodeObject(t, rr)
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Fatalf("unexpected ready body %v", response)
	}
}

func TestOptionsPreflight(t *testing.T) {
	rr := doJSON(t, newTestServer(newFakeStore()), http.MethodOptions, "/api/task", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers on preflight")
	}
}

func TestSignupStatusCodes(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "auth0|a", "Work")

	rr := doJSON(t, h, http.MethodPost, "/api/signup", map[string]any{"identity": "auth0|a", "display_name": "again"})
	if rr.Code != http.StatusConflict || decodeObject(t, rr)["code"] != "DUPLICATE_IDENTITY" {
		t.Fatalf("expected 409 DUPLICATE_IDENTITY, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/signup", map[string]any{"identity": "b"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	details := decodeObject(t, rr)["details"].(map[string]any)
	if _, ok := details["display_name"]; !ok {
		t.Fatalf("expected display_name error, got %v", details)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/signup", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestProjectFavoriteIsPerViewerOverHTTP(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u")
	signupOverHTTP(t, h, "v")

	rr := doJSON(t, h, http.MethodPost, "/api/project", map[string]any{
		"identity": "u", "name": "Shared", "color": "#ffffff", "is_favorite": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rr.Code, rr.Body.String())
	}
	projectID := decodeObject(t, rr)["id"].(string)

	asU := decodeObject(t, doJSON(t, h, http.MethodGet, "/api/project/"+projectID+"?identity=u", nil))
	asV := decodeObject(t, doJSON(t, h, http.MethodGet, "/api/category/"+projectID+"?identity=v", nil))
	if asU["favorite"] != true || asV["favorite"] != false {
		t.Fatalf("expected favorite true for u and false for v, got %v / %v", asU["favorite"], asV["favorite"])
	}
	if asU["id"] != asV["id"] {
		t.Fatal("both viewers must read the same stored row")
	}
}

func TestFieldsParameterProjectsResponses(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u", "Work", "Home")

	rr := doJSON(t, h, http.MethodGet, "/api/category?identity=u&fields=name,index,unknown", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list categories: %d %s", rr.Code, rr.Body.String())
	}
	list := decodeList(t, rr)
	if len(list) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(list))
	}
	for _, item := range list {
		if len(item) != 2 {
			t.Fatalf("expected exactly name and index, got %v", item)
		}
	}
	if list[0]["name"] != "Work" || list[1]["index"] != float64(2) {
		t.Fatalf("expected membership order, got %v", list)
	}

	full := decodeList(t, doJSON(t, h, http.MethodGet, "/api/category?identity=u", nil))
	if len(full[0]) != len(projectSchema.Fields) {
		t.Fatalf("expected every declared field without fields=, got %d", len(full[0]))
	}
}

func TestTaskCreationOverHTTP(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u", "Work")

	rr := doJSON(t, h, http.MethodPost, "/api/task", map[string]any{
		"identity": "u", "project_name": "Work", "content": "c", "deadline_str": "2024-01-15 09:30:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rr.Code, rr.Body.String())
	}
	task := decodeObject(t, rr)
	if task["deadline"] != "2024-01-15 09:30:00" || task["sub_tasks"] != nil {
		t.Fatalf("unexpected task %v", task)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/task", map[string]any{
		"identity": "u", "project_name": "Work", "content": "c", "label_list": []string{"nope"},
	})
	body := decodeObject(t, rr)
	if rr.Code != http.StatusNotFound || body["code"] != "LABEL_NOT_FOUND" {
		t.Fatalf("expected 404 LABEL_NOT_FOUND, got %d %v", rr.Code, body)
	}
	if body["details"].(map[string]any)["entity"] != "label" {
		t.Fatalf("expected entity detail, got %v", body["details"])
	}

	rr = doJSON(t, h, http.MethodPost, "/api/task", map[string]any{
		"identity": "u", "project_name": "Work", "content": "c", "remind_str": "tomorrow",
	})
	if rr.Code != http.StatusBadRequest || decodeObject(t, rr)["code"] != "MALFORMED_TIMESTAMP" {
		t.Fatalf("expected 400 MALFORMED_TIMESTAMP, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/task", map[string]any{"identity": "ghost", "project_name": "Work", "content": "c"})
	if rr.Code != http.StatusNotFound || decodeObject(t, rr)["code"] != "OWNER_NOT_FOUND" {
		t.Fatalf("expected 404 OWNER_NOT_FOUND, got %d", rr.Code)
	}

	list := decodeList(t, doJSON(t, h, http.MethodGet, "/api/task?identity=u&fields=content", nil))
	if len(list) != 2 {
		t.Fatalf("expected the created task and the partial one, got %d", len(list))
	}
}

func TestAppInitErrorBody(t *testing.T) {
	h := newTestServer(newFakeStore())

	rr := doJSON(t, h, http.MethodGet, "/api/appinit?identity=ghost", nil)
	body := decodeObject(t, rr)
	if rr.Code != http.StatusNotFound || body["result"] != false || body["code"] != "OWNER_NOT_FOUND" {
		t.Fatalf("expected 404 result=false OWNER_NOT_FOUND, got %d %v", rr.Code, body)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/appinit", nil)
	if rr.Code != http.StatusBadRequest || decodeObject(t, rr)["result"] != false {
		t.Fatalf("expected 400 result=false, got %d", rr.Code)
	}

	signupOverHTTP(t, h, "u", "Work")
	rr = doJSON(t, h, http.MethodGet, "/api/appinit?identity=u", nil)
	body = decodeObject(t, rr)
	if rr.Code != http.StatusOK || body["result"] != true || len(body["categorys"].([]any)) != 1 {
		t.Fatalf("unexpected appinit %d %v", rr.Code, body)
	}
}

func TestDefaultCategorysEndpoint(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	h := NewHTTPServer(svc, "*", ServerOptions{}).Handler()

	body := decodeObject(t, doJSON(t, h, http.MethodGet, "/api/default-categorys?identity=new", nil))
	if body["result"] != true || len(body["default_categorys"].([]any)) == 0 {
		t.Fatalf("expected templates for unknown identity, got %v", body)
	}

	signupOverHTTP(t, h, "known")
	rr := doJSON(t, h, http.MethodGet, "/api/default-categorys?identity=known", nil)
	if rr.Code != http.StatusOK || decodeObject(t, rr)["result"] != false {
		t.Fatalf("expected 200 result=false, got %d", rr.Code)
	}

	if rr := doJSON(t, h, http.MethodGet, "/api/default-categorys", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity, got %d", rr.Code)
	}
}

func TestKarmaLedgerIsAppendOnlyOverHTTP(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u")

	rr := doJSON(t, h, http.MethodPost, "/api/karma", map[string]any{"identity": "u", "activity": "streak", "point": 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create karma: %d %s", rr.Code, rr.Body.String())
	}
	karmaID := decodeObject(t, rr)["id"].(string)

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		rr := doJSON(t, h, method, "/api/karma/"+karmaID, map[string]any{"identity": "u", "point": 100})
		if rr.Code != http.StatusMethodNotAllowed || decodeObject(t, rr)["code"] != "METHOD_NOT_ALLOWED" {
			t.Fatalf("%s: expected 405, got %d", method, rr.Code)
		}
	}

	setting := decodeObject(t, doJSON(t, h, http.MethodGet, "/api/setting?identity=u", nil))
	if setting["karma"] != float64(2) {
		t.Fatalf("expected karma total 2, got %v", setting["karma"])
	}
}

func TestDeleteReturnsNoContent(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u")

	rr := doJSON(t, h, http.MethodPost, "/api/label", map[string]any{"identity": "u", "name": "tmp"})
	labelID := decodeObject(t, rr)["id"].(string)

	if rr := doJSON(t, h, http.MethodDelete, "/api/label/"+labelID+"?identity=u", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodGet, "/api/label/"+labelID+"?identity=u", nil)
	if rr.Code != http.StatusNotFound || decodeObject(t, rr)["code"] != "LABEL_NOT_FOUND" {
		t.Fatalf("expected 404 LABEL_NOT_FOUND after delete, got %d", rr.Code)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	rr := doJSON(t, newTestServer(newFakeStore()), http.MethodGet, "/api/nothing-here", nil)
	if rr.Code != http.StatusNotFound || decodeObject(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestExportProjectHTML(t *testing.T) {
	h := newTestServer(newFakeStore())
	signupOverHTTP(t, h, "u", "Work")
	projectID := decodeList(t, doJSON(t, h, http.MethodGet, "/api/project?identity=u", nil))[0]["id"].(string)
	doJSON(t, h, http.MethodPost, "/api/task", map[string]any{"identity": "u", "project_name": "Work", "content": "export me"})

	rr := doJSON(t, h, http.MethodGet, "/api/project/"+projectID+"/export?identity=u&format=html", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html content type, got %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "export me") {
		t.Fatal("expected task content in export")
	}

	rr = doJSON(t, h, http.MethodGet, "/api/project/"+projectID+"/export?identity=u&format=docx", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/project/"+projectID+"/export", map[string]any{"identity": "u"})
	if rr.Code != http.StatusServiceUnavailable || decodeObject(t, rr)["code"] != "EXPORT_STORAGE_UNAVAILABLE" {
		t.Fatalf("expected 503 without storage, got %d", rr.Code)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	svc := newTestService(newFakeStore())
	h := NewHTTPServer(svc, "*", ServerOptions{
		Limiter:            ratelimit.NewLocalLimiter(2),
		RateLimitPerMinute: 2,
	}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := doJSON(t, h, http.MethodPost, "/api/signup", map[string]any{"identity": "x", "display_name": "x"})
		codes = append(codes, rr.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third write to be limited, got %v", codes)
	}
	if rr := doJSON(t, h, http.MethodGet, "/api/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	svc := newService(config.Config{}, newFakeStore(), Options{Metrics: m})
	h := NewHTTPServer(svc, "*", ServerOptions{Metrics: m}).Handler()

	signupOverHTTP(t, h, "u")
	rr := doJSON(t, h, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `taskhub_workflow_events_total{event="signup",result="ok"} 1`) {
		t.Fatalf("expected signup event in metrics:\n%s", body)
	}
	if !strings.Contains(body, `route="/api/signup"`) {
		t.Fatalf("expected route template label in metrics")
	}
}
