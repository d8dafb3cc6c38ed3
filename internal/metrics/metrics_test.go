package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			total := 0.0
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

// TestRecordLoginResults_IncrementCounters はログイン結果カウンタが増加することを検証する。
func TestRecordLoginResults_IncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginSuccess()
	c.RecordLoginSuccess()
	c.RecordLoginFailure()

	if got := counterValue(t, reg, "tasktracker_login_success_total"); got != 2 {
		t.Errorf("login_success_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "tasktracker_login_failure_total"); got != 1 {
		t.Errorf("login_failure_total = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	if got := counterValue(t, reg, "tasktracker_http_status_total"); got != 3 {
		t.Errorf("http_status_total = %v, want 3", got)
	}
}

// TestHandler_ServesMetrics は/metricsハンドラーが登録済みメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLoginSuccess()
	c.RecordRequestDuration(42 * time.Millisecond)

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "tasktracker_login_success_total") {
		t.Error("response should contain tasktracker_login_success_total metric")
	}
	if !strings.Contains(bodyStr, "tasktracker_request_duration_seconds") {
		t.Error("response should contain tasktracker_request_duration_seconds metric")
	}
}
