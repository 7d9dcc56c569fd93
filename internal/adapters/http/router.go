package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
	"github.com/Heshamoov/aid-app-admin-production/internal/session"
	"github.com/Heshamoov/aid-app-admin-production/internal/ui"
)

type contextKey string

const principalKey contextKey = "principal"

type Options struct {
	// AuthClient backs the cookie session. Defaults to the service itself.
	AuthClient session.AuthClient
	Version    *application.VersionChecker
	Migrations *migrations.Runner
	Cookie     session.CookieOptions
	Logger     *slog.Logger
}

type Handler struct {
	service    *application.LedgerService
	auth       session.AuthClient
	version    *application.VersionChecker
	migrations *migrations.Runner
	cookie     session.CookieOptions
	logger     *slog.Logger
}

func NewRouter(service *application.LedgerService, opts Options) http.Handler {
	h := &Handler{
		service:    service,
		auth:       opts.AuthClient,
		version:    opts.Version,
		migrations: opts.Migrations,
		cookie:     opts.Cookie,
		logger:     opts.Logger,
	}
	if h.auth == nil {
		h.auth = service
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.sessionHook)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.With(h.requireAuth).Get("/", h.handleHomeRedirect)
		r.With(h.requireAuth).Get("/dashboard", h.handleDashboard)

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(domain.RoleAdmin, domain.RoleMonitor))
			r.Get("/collections/{collection}", h.handleCollection)
			r.Get("/admin/audit", h.handleAudit)
			r.Get("/admin/schema", h.handleSchema)
		})
		r.With(h.requireRole(domain.RoleAdmin)).Get("/admin/users", h.handleUsers)
		r.With(h.requireRole(domain.RoleVolunteer)).Get("/volunteer", h.handleVolunteer)

		r.With(h.requireAuthGUI(application.PermRecordsCreate)).Post("/commands/collections/{collection}/records", h.handleCreateRecord)
		r.With(h.requireAuthGUI(application.PermRecordsReview)).Post("/commands/collections/{collection}/records/{id}/status/{status}", h.handleSetStatus)
		r.With(h.requireAuthGUI(application.PermRecordsDelete)).Post("/commands/collections/{collection}/records/{id}/delete", h.handleDeleteRecord)
		r.With(h.requireAuthGUI(application.PermUsersManage)).Post("/commands/users", h.handleCreateUser)

		r.Route("/api", func(api chi.Router) {
			api.Get("/version", h.handleAPIVersion)
			api.Post("/collections/users/auth-with-password", h.handleAPIAuthWithPassword)
			api.Post("/collections/users/auth-refresh", h.handleAPIAuthRefresh)

			api.With(h.requireAPI("")).Get("/auth/whoami", h.handleAPIWhoAmI)
			api.With(h.requireAPI("")).Get("/collections", h.handleAPIListCollections)
			api.With(h.requireAPI("")).Get("/collections/{collection}/records", h.handleAPIListRecords)
			api.With(h.requireAPI(application.PermRecordsCreate)).Post("/collections/{collection}/records", h.handleAPICreateRecord)
			api.With(h.requireAPI("")).Get("/collections/{collection}/records/{id}", h.handleAPIGetRecord)
			api.With(h.requireAPI(application.PermRecordsUpdate)).Patch("/collections/{collection}/records/{id}", h.handleAPIUpdateRecord)
			api.With(h.requireAPI(application.PermRecordsDelete)).Delete("/collections/{collection}/records/{id}", h.handleAPIDeleteRecord)
			api.With(h.requireAPI(application.PermRecordsReview)).Post("/collections/{collection}/records/{id}/status", h.handleAPISetStatus)
			api.With(h.requireAPI(application.PermUsersManage)).Get("/users", h.handleAPIListUsers)
			api.With(h.requireAPI(application.PermUsersManage)).Post("/users", h.handleAPICreateUser)
			api.With(h.requireAPI(application.PermAuditRead)).Get("/audit", h.handleAPIListAudit)
			api.With(h.requireAPI(application.PermMigrationsRead)).Get("/migrations", h.handleAPIMigrations)
		})
	})

	return r
}

// requireAuth sends visitors without a valid session to the login page and
// remembers where they were going.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := sessionPrincipal(r)
		if !ok {
			redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// requireRole lets through only the given roles. Anyone else who is signed
// in goes to their own landing page.
func (h *Handler) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessionPrincipal(r)
			if !ok {
				redirectToLogin(w, r)
				return
			}
			if !slices.Contains(roles, p.Role) {
				metrics.GuardRedirectsTotal.WithLabelValues("role").Inc()
				http.Redirect(w, r, application.LandingPath(p), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

func (h *Handler) requireAuthGUI(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessionPrincipal(r)
			if !ok {
				redirectToLogin(w, r)
				return
			}
			if !h.service.Can(p, permission) {
				h.renderFlash(r.Context(), w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

// requireAPI accepts a bearer token or the cookie session. An empty
// permission only requires authentication; the service checks the rest.
func (h *Handler) requireAPI(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := h.authenticateRequest(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
				return
			}
			if permission != "" && !h.service.Can(p, permission) {
				writeError(w, http.StatusForbidden, "The authorized record is not allowed to perform this action.")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

type tokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Principal, error)
}

func (h *Handler) authenticateRequest(r *http.Request) (*domain.Principal, bool) {
	if token, ok := bearerToken(r); ok {
		p, err := h.authenticateBearer(r.Context(), token)
		if err != nil {
			h.logger.Debug("bearer token rejected", "error", err)
			return nil, false
		}
		return p, true
	}
	return sessionPrincipal(r)
}

// authenticateBearer checks a token with whichever backend issued it.
func (h *Handler) authenticateBearer(ctx context.Context, token string) (*domain.Principal, error) {
	if a, ok := h.auth.(tokenAuthenticator); ok {
		return a.Authenticate(ctx, token)
	}
	_, p, err := h.auth.AuthRefresh(ctx, token)
	return p, err
}

func sessionPrincipal(r *http.Request) (*domain.Principal, bool) {
	s := currentSession(r)
	if s == nil || !s.Authenticated() {
		return nil, false
	}
	return s.User(), true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		return token, token != ""
	}
	return "", false
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	metrics.GuardRedirectsTotal.WithLabelValues("unauthenticated").Inc()
	http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)
}

func principalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	if target == "/login" {
		return fallback
	}
	return target
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the backend's error envelope so SDK clients can read it.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"code": status, "message": message, "data": map[string]any{}})
}

func renderHTMLFragments(ctx context.Context, w http.ResponseWriter, status int, fragments ...templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	for _, fragment := range fragments {
		if fragment == nil {
			continue
		}
		_ = fragment.Render(ctx, w)
	}
}

func (h *Handler) renderFlash(ctx context.Context, w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if status >= 400 {
		_ = ui.Flash(message, "error").Render(ctx, w)
		return
	}
	_ = ui.Flash(message, "info").Render(ctx, w)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("render page", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
