package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ExposesAllFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordReconcile(ReconcileCreated)
	c.RecordScheduleSave(ScheduleInsert)
	c.RecordChatRelay(false, 300*time.Millisecond)
	c.RecordHTTPStatus(http.StatusTooManyRequests)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		`bitesync_profile_reconcile_total{outcome="created"} 1`,
		`bitesync_schedule_save_total{outcome="insert"} 1`,
		`bitesync_chat_relay_total{result="failure"} 1`,
		`bitesync_chat_relay_latency_seconds_count 1`,
		`bitesync_http_status_total{status_code="429"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
