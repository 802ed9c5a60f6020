package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"crm-dashboard/internal/security"
)

// csrfExempt lists paths that change state without an established session
var csrfExempt = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/health",
	"/metrics",
	"/ws/",
}

// CSRF enforces the double-submit cookie pattern.
//
// Safe requests get a csrf_token cookie when they lack one. State-changing
// requests must echo that cookie in X-CSRF-Token (or X-XSRF-Token, or the
// csrf_token form field); otherwise they are rejected with 403.
func CSRF(tm *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookieToken := ""
			if c, err := r.Cookie(security.CSRFCookieName); err == nil {
				cookieToken = c.Value
			}

			if isSafeMethod(r.Method) {
				if cookieToken == "" {
					if token, err := tm.Generate(); err == nil {
						http.SetCookie(w, tm.Cookie(token))
					} else {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if err := tm.Verify(cookieToken, extractCSRFToken(r)); err != nil {
				logCSRFFailure(r, err.Error())
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, exempt := range csrfExempt {
		if strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

// extractCSRFToken checks the headers first so JSON bodies are never parsed as forms
func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(security.CSRFHeaderName); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.FormValue("csrf_token")
	}
	return ""
}

func logCSRFFailure(r *http.Request, reason string) {
	userID, _ := GetUserID(r.Context())
	slog.Warn("CSRF validation failed",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
