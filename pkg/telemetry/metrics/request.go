package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Middleware instruments every request passing through it, recording the
// request count and duration under the request's path. When metrics are
// disabled the handler chain is returned unwrapped.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if !c.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		c.RecordRequest(r.URL.Path, strconv.Itoa(recorder.status), time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code while delegating all
// writes to the underlying ResponseWriter. It forwards Flush so that
// streamed responses keep flushing through the instrumented chain.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
