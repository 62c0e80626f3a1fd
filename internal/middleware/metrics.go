package middleware

import (
	"net/http"
	"time"
)

// RequestMetrics はリクエスト単位で記録するメトリクスのインターフェース。
type RequestMetrics interface {
	RecordHTTPRequest(method string, statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// NewMetricsMiddleware はリクエストの完了数とレイテンシを記録するミドルウェアを返す。
func NewMetricsMiddleware(collector RequestMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			collector.RecordHTTPRequest(r.Method, rec.statusCode)
			collector.RecordRequestLatency(time.Since(start))
		})
	}
}
