package authcheck

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/busprobridge/core/internal/infrastructure/config"
)

// errorResponse mirrors the shape used across the HTTP surface so a 401
// from this boundary looks no different from any other API error.
type errorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer`)
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // best-effort write; connection may already be closing
	json.NewEncoder(w).Encode(errorResponse{
		Status:  http.StatusUnauthorized,
		Code:    "unauthorised",
		Message: message,
	})
}

// Middleware returns HTTP middleware enforcing cfg's auth mode.
//
// Ingress bypasses the check unconditionally — it marks the request as
// already authenticated by a trusted reverse-proxy channel, not as another
// AuthMode. Otherwise the configured mode decides the check:
//
//	none  — always allowed
//	token — Authorization: Bearer <token> must match cfg.Token
//	basic — HTTP Basic auth must match cfg.Username/cfg.Password
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Ingress {
				next.ServeHTTP(w, r)
				return
			}

			switch cfg.Mode {
			case config.AuthModeNone:
				next.ServeHTTP(w, r)
				return
			case config.AuthModeToken:
				if !checkBearerToken(r, cfg.Token) {
					writeUnauthorized(w, "missing or invalid bearer token")
					return
				}
			case config.AuthModeBasic:
				if !checkBasicAuth(r, cfg.Username, cfg.Password) {
					writeUnauthorized(w, "missing or invalid credentials")
					return
				}
			default:
				writeUnauthorized(w, "authentication not configured")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkBearerToken(r *http.Request, want string) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := strings.TrimPrefix(header, prefix)
	return constantTimeEqual(got, want)
}

func checkBasicAuth(r *http.Request, wantUser, wantPass string) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return constantTimeEqual(user, wantUser) && constantTimeEqual(pass, wantPass)
}

// constantTimeEqual compares two strings without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison so the early return doesn't itself leak
		// length information through a measurably shorter code path.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
