package middleware

import (
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorWriter writes the response for a recovered panic
type ErrorWriter func(w http.ResponseWriter, r *http.Request, recovered interface{})

func writeInternalError(w http.ResponseWriter, _ *http.Request, _ interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"internal server error"}`))
}

// Recovery turns handler panics into a JSON 500
func Recovery(logger *zap.Logger) func(next http.Handler) http.Handler {
	return RecoveryWithWriter(logger, writeInternalError)
}

// RecoveryWithWriter is Recovery with a custom error response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func RecoveryWithWriter(logger *zap.Logger, writeError ErrorWriter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("handler panicked",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				writeError(w, r, rec)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
