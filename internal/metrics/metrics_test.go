package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RecordFrame("sent")
	a.RecordFrame("sent")
	a.RecordFrame("dropped")

	if got := testutil.ToFloat64(a.FramesTotal.WithLabelValues("sent")); got != 2 {
		t.Errorf("Expected 2 sent frames, got %v", got)
	}
	if got := testutil.ToFloat64(b.FramesTotal.WithLabelValues("sent")); got != 0 {
		t.Errorf("Expected second instance untouched, got %v", got)
	}
}

func TestRecordPlayback(t *testing.T) {
	m := New()

	m.RecordPlayback("PLAYING", true)
	if got := testutil.ToFloat64(m.Playing); got != 1 {
		t.Errorf("Expected playing gauge 1, got %v", got)
	}

	m.RecordPlayback("SILENT", false)
	if got := testutil.ToFloat64(m.Playing); got != 0 {
		t.Errorf("Expected playing gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.PlaybackTransitions.WithLabelValues("PLAYING")); got != 1 {
		t.Errorf("Expected 1 transition to PLAYING, got %v", got)
	}
}

func TestRecordSession(t *testing.T) {
	m := New()

	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}

	m.RecordSessionEnd("closed", 12.5)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("closed")); got != 1 {
		t.Errorf("Expected 1 closed session, got %v", got)
	}
}

func TestRecordPoolAllocationsIgnoresZero(t *testing.T) {
	m := New()
	m.RecordPoolAllocations(0)
	m.RecordPoolAllocations(-1)
	m.RecordPoolAllocations(3)

	if got := testutil.ToFloat64(m.PoolAllocations); got != 3 {
		t.Errorf("Expected 3 allocations, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordEvent("tts_chunk")
	m.RecordRefresh("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`arunika_client_events_total{type="tts_chunk"} 1`,
		`arunika_client_credential_refreshes_total{result="success"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordFrame("sent")
	m.RecordEvent("tts_chunk")
	m.RecordSessionEnd("closed", 1)
}
