package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/domain"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/memory"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	dates := []string{"20240110", "20240210", "20240310", "20240410", "20240510"}
	store := memory.NewStore()
	for _, branch := range []string{"0101", "0103"} {
		var b memory.Branch
		b.General = []replenishment.Record{{"group_id": "G1", "description": "Group 1", "code": "C1", "on_hand_qty": 3}}
		b.Orders = []replenishment.Record{{"group_id": "G1", "qty_receivable": 1}}
		for i, q := range []int{9, 9, 9, 5, 6} {
			b.Invoices = append(b.Invoices, replenishment.Record{"group_id": "G1", "date": dates[i], "qty": q})
		}
		b.Sales = []replenishment.Record{{"group_id": "G1", "qty": 7}}
		store.Put(branch, b)
	}

	orch, err := pipeline.NewOrchestrator(repository.NewBranchLoader(store, store), pipeline.DefaultPipelineConfig("api"))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	catalogue := service.NewCatalogue([]string{"0101", "0103", "0104"})
	services := &Services{
		RecommendationService: service.NewRecommendationService(service.RecommendationDeps{Runner: orch, Catalogue: catalogue}),
		AnalysisService:       service.NewAnalysisService(analysis.NewReporter(orch, store), catalogue, nil),
	}
	return NewRouter(services, []string{"*"})
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHealthAndBranches(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	if w := do(t, r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}

	w := do(t, r, http.MethodGet, "/api/v1/branches", "")
	if w.Code != http.StatusOK {
		t.Fatalf("branches status = %d", w.Code)
	}
	var resp domain.BranchesResponse
	decode(t, w, &resp)
	if !reflect.DeepEqual(resp.Branches, []string{"0101", "0103", "0104"}) {
		t.Fatalf("branches = %v", resp.Branches)
	}
	if !reflect.DeepEqual(resp.Views, []string{"detail", "standard", "summary"}) {
		t.Fatalf("views = %v", resp.Views)
	}
	if !reflect.DeepEqual(resp.Periods, []int{3, 6, 12, 24}) {
		t.Fatalf("periods = %v", resp.Periods)
	}
}

func TestGetRecommendations_SingleBranch(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/recommendations?branch=0101", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp domain.RecommendationResponse
	decode(t, w, &resp)
	if !resp.Complete || resp.View != "standard" || len(resp.Rows) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	row := resp.Rows[0]
	if row["group_id"] != "G1" || row["suggestion"] != float64(10) || row["grade"] != float64(3) {
		t.Fatalf("row = %v", row)
	}
	if got := resp.Periods["0101"]; len(got) != 5 || got[0] != "2024-01" {
		t.Fatalf("periods = %v", got)
	}
}

func TestGetRecommendations_AllBranchesWithFailure(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/recommendations?branch=Todas&view=summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp domain.RecommendationResponse
	decode(t, w, &resp)
	if resp.Complete || len(resp.Failures) != 1 || resp.Failures[0].Branch != "0104" {
		t.Fatalf("failures = %+v", resp.Failures)
	}
	if resp.Rows[0]["min_0101"] != float64(5) || resp.Rows[0]["safety_stock_0103"] != float64(0) {
		t.Fatalf("row = %v", resp.Rows[0])
	}
}

func TestGetRecommendations_BadRequests(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	for _, target := range []string{
		"/api/v1/recommendations?branch=0999",
		"/api/v1/recommendations?branch=0101&view=pivot",
		"/api/v1/recommendations/export?branch=0101&format=pdf",
		"/api/v1/analysis?branch=0101&months=5",
	} {
		if w := do(t, r, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", target, w.Code)
		}
	}
}

func TestExportRecommendations_CSV(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/recommendations/export?branch=0101&format=csv", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "recommendations_0101_") || !strings.HasSuffix(cd, `.csv"`) {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "G1,Group 1,C1,") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/recommendations/runs", `{"branch":"0101,0103","view":"detail"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	var run domain.RunResponse
	decode(t, w, &run)
	if run.ID == "" {
		t.Fatalf("missing run id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for run.Status != string(pipeline.StatusCompleted) {
		if time.Now().After(deadline) {
			t.Fatalf("run did not complete, last status %q", run.Status)
		}
		time.Sleep(10 * time.Millisecond)
		w = do(t, r, http.MethodGet, "/api/v1/recommendations/runs/"+run.ID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		run = domain.RunResponse{}
		decode(t, w, &run)
	}
	if run.Result == nil || len(run.Result.Rows) != 1 || run.Progress["0103"] != "completed" {
		t.Fatalf("unexpected finished run %+v", run)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/recommendations/runs/"+run.ID, ""); w.Code != http.StatusConflict {
		t.Fatalf("cancel finished run status = %d, want 409", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/recommendations/runs/unknown", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d, want 404", w.Code)
	}
}

func TestInvalidateCache(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	if w := do(t, r, http.MethodDelete, "/api/v1/recommendations/cache", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetAnalysis(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/analysis?branch=0103&months=6", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp domain.AnalysisResponse
	decode(t, w, &resp)
	if resp.Months != 6 || len(resp.Rows) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Rows[0]["average_demand"] != float64(2) || resp.Rows[0]["average_cost"] != nil {
		t.Fatalf("row = %v", resp.Rows[0])
	}
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	t.Parallel()

	origins, all := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", " ", "*"})
	if !all || !reflect.DeepEqual(origins, []string{"http://a.test", "http://b.test"}) {
		t.Fatalf("origins = %v, all = %v", origins, all)
	}
}
