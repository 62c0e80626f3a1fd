package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeRequestMetrics はRequestMetricsの記録内容を保持するフェイク。
type fakeRequestMetrics struct {
	methods   []string
	statuses  []int
	latencies []time.Duration
}

func (f *fakeRequestMetrics) RecordHTTPRequest(method string, statusCode int) {
	f.methods = append(f.methods, method)
	f.statuses = append(f.statuses, statusCode)
}

func (f *fakeRequestMetrics) RecordRequestLatency(duration time.Duration) {
	f.latencies = append(f.latencies, duration)
}

// TestMetricsMiddleware_RecordsMethodAndStatus はメソッドとステータスコードが記録されることを検証する。
func TestMetricsMiddleware_RecordsMethodAndStatus(t *testing.T) {
	fake := &fakeRequestMetrics{}
	handler := NewMetricsMiddleware(fake)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(fake.methods) != 1 || fake.methods[0] != http.MethodPost {
		t.Errorf("methods = %v, want [POST]", fake.methods)
	}
	if len(fake.statuses) != 1 || fake.statuses[0] != http.StatusCreated {
		t.Errorf("statuses = %v, want [201]", fake.statuses)
	}
	if len(fake.latencies) != 1 {
		t.Errorf("latencies = %d entries, want 1", len(fake.latencies))
	}
}

// TestMetricsMiddleware_DefaultsTo200 はWriteHeaderが呼ばれない場合に200が記録されることを検証する。
func TestMetricsMiddleware_DefaultsTo200(t *testing.T) {
	fake := &fakeRequestMetrics{}
	handler := NewMetricsMiddleware(fake)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(fake.statuses) != 1 || fake.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", fake.statuses)
	}
}
