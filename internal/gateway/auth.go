package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/toolgate/internal/security"
)

// authMiddleware validates a bearer token using constant-time comparison.
// Failures are recorded on the audit logger when one is set.
func authMiddleware(token string, audit *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthFailure(audit, r, "missing authorization header")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, token) {
				next.ServeHTTP(w, r)
				return
			}
			emitAuthFailure(audit, r, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func emitAuthFailure(audit *security.AuditLogger, r *http.Request, detail string) {
	if audit == nil {
		return
	}
	audit.Log(security.AuditEvent{
		Type:   security.EventAuthFailure,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
