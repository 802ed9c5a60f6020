package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/tokenstore"
)

// Identity headers injected for downstream handlers. Client-supplied values are stripped.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// RouteClass is how the gatekeeper treats a path
type RouteClass int

const (
	RouteOpen RouteClass = iota
	RoutePublic
	RouteProtected
	RouteAdmin
)

// GatekeeperConfig lists path prefixes per class
type GatekeeperConfig struct {
	Public    []string
	Protected []string
	Admin     []string
	// Skip are prefixes the gatekeeper never looks at (API, assets, probes)
	Skip []string

	Verifier    *TokenVerifier
	Cookies     tokenstore.CookieOptions
	LandingPath string
	LoginPath   string
}

// DefaultGatekeeperConfig returns the dashboard's route table
func DefaultGatekeeperConfig(verifier *TokenVerifier, cookies tokenstore.CookieOptions) GatekeeperConfig {
	return GatekeeperConfig{
		Public:      []string{"/auth/login", "/auth/register"},
		Protected:   []string{"/dashboard", "/profile", "/orders", "/payments", "/broadcast", "/ws"},
		Admin:       []string{"/admin"},
		Skip:        []string{"/api", "/static", "/health", "/metrics", "/favicon.ico"},
		Verifier:    verifier,
		Cookies:     cookies,
		LandingPath: "/dashboard/dashboard",
		LoginPath:   "/auth/login",
	}
}

// Classify returns the class of path. Admin wins over protected, protected over public.
func (c GatekeeperConfig) Classify(path string) RouteClass {
	switch {
	case hasPrefix(path, c.Admin):
		return RouteAdmin
	case hasPrefix(path, c.Protected):
		return RouteProtected
	case hasPrefix(path, c.Public):
		return RoutePublic
	default:
		return RouteOpen
	}
}

// Gatekeeper verifies the access token cookie before a page is served
func Gatekeeper(cfg GatekeeperConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if hasPrefix(path, cfg.Skip) {
				next.ServeHTTP(w, r)
				return
			}

			r.Header.Del(HeaderUserID)
			r.Header.Del(HeaderUserEmail)
			r.Header.Del(HeaderUserRole)

			token := ""
			if cookie, err := r.Cookie(tokenstore.AccessTokenName); err == nil {
				token = cookie.Value
			}

			log := observability.FromContext(r.Context()).With(slog.String("path", path))
			class := cfg.Classify(path)

			switch {
			case class == RoutePublic && token != "":
				if _, err := cfg.Verifier.Verify(token); err != nil {
					log.Debug("dropping invalid token on public route", slog.String("error", err.Error()))
					tokenstore.ClearCookies(w, cfg.Cookies)
					next.ServeHTTP(w, r)
					return
				}
				redirect(w, r, cfg.LandingPath)
				return

			case class == RouteProtected || class == RouteAdmin:
				if token == "" {
					redirect(w, r, cfg.LoginPath)
					return
				}

				id, err := cfg.Verifier.Verify(token)
				if err != nil {
					log.Info("rejecting invalid token", slog.String("error", err.Error()))
					tokenstore.ClearCookies(w, cfg.Cookies)
					redirect(w, r, cfg.LoginPath)
					return
				}

				if class == RouteAdmin && !id.IsAdmin() {
					log.Warn("non-admin on admin route", slog.String("user_id", id.UserID))
					redirect(w, r, cfg.LandingPath)
					return
				}

				r.Header.Set(HeaderUserID, id.UserID)
				r.Header.Set(HeaderUserEmail, id.Email)
				r.Header.Set(HeaderUserRole, string(id.Role))

				ctx := WithIdentity(r.Context(), id)
				ctx = observability.WithUserID(ctx, id.UserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return

			case path == "/":
				if token != "" {
					redirect(w, r, cfg.LandingPath)
				} else {
					redirect(w, r, cfg.LoginPath)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusTemporaryRedirect)
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
