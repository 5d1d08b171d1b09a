package shield

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/glane/kit"
)

// RequestID generates a random ID for each request and injects it into the
// context, the X-Request-ID response header, and a per-request structured
// logger stored under LoggerKey.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4)
		rand.Read(buf)
		id := "req_" + hex.EncodeToString(buf)

		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithRemoteAddr(ctx, ExtractIP(r))
		w.Header().Set("X-Request-ID", id)

		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = kit.WithTransport(ctx, "http")
		next.ServeHTTP(w, r.WithContext(withLogger(ctx, logger)))
	})
}

// RequestLogger returns middleware that records each request into the
// http_request_logs table. Inserts run in a goroutine so a slow disk never
// delays the response; failures are logged and dropped.
func RequestLogger(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			method, path := r.Method, r.URL.Path
			ip, ua := ExtractIP(r), r.UserAgent()
			durMs := time.Since(start).Milliseconds()
			go func() {
				_, err := db.Exec(`
					INSERT INTO http_request_logs (method, path, status_code, duration_ms, ip_address, user_agent, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					method, path, sw.status, durMs, ip, ua, time.Now().Unix())
				if err != nil {
					slog.Warn("shield: request log insert failed", "error", err)
				}
			}()
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
