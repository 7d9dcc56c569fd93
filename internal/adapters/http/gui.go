package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/ui"
)

var reviewCollections = []string{domain.ExpensesCollection, domain.DonationsCollection}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if p, ok := sessionPrincipal(r); ok {
		if landing := application.LandingPath(p); landing != "/login" {
			http.Redirect(w, r, landing, http.StatusSeeOther)
			return
		}
	}
	h.renderPage(w, r, ui.LoginPage("", r.URL.Query().Get("redirect")))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	redirect := r.Form.Get("redirect")

	s := currentSession(r)
	res := s.Login(r.Context(), email, password)
	if !res.Success {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_ = ui.LoginPage(res.Error, redirect).Render(r.Context(), w)
		return
	}

	http.Redirect(w, r, safeRedirect(redirect, application.LandingPath(s.User())), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	currentSession(r).Logout()
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleHomeRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, application.LandingPath(principalFromContext(r.Context())), http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	summary, err := h.service.Summary(r.Context(), p)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.renderPage(w, r, ui.DashboardPage(h.nav(p), summary))
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	view, err := h.collectionView(r.Context(), p, chi.URLParam(r, "collection"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.renderPage(w, r, ui.CollectionPage(h.nav(p), view))
}

func (h *Handler) handleVolunteer(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	views := make([]ui.CollectionView, 0, len(reviewCollections))
	for _, name := range reviewCollections {
		view, err := h.collectionView(r.Context(), p, name)
		if err != nil {
			h.logger.Warn("volunteer view", "collection", name, "error", err)
			continue
		}
		views = append(views, view)
	}
	h.renderPage(w, r, ui.VolunteerPage(h.nav(p), views))
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), p, "", 300)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.renderPage(w, r, ui.UsersPage(h.nav(p), users))
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	logs, err := h.service.ListAuditLogs(r.Context(), p, 300)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.renderPage(w, r, ui.AuditPage(h.nav(p), logs))
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	if !h.service.Can(p, application.PermMigrationsRead) || h.migrations == nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	steps, err := h.migrations.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	collections, err := h.service.ListCollections(r.Context(), p)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.renderPage(w, r, ui.SchemaPage(h.nav(p), steps, collections))
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	name := chi.URLParam(r, "collection")

	var sig map[string]any
	if err := datastar.ReadSignals(r, &sig); err != nil {
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "invalid signals")
		return
	}
	data, _ := sig[name].(map[string]any)
	if data == nil {
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "missing record signals")
		return
	}

	rec, err := h.service.CreateRecord(r.Context(), p, name, data)
	if err != nil {
		h.renderFlash(r.Context(), w, statusFor(err), err.Error())
		return
	}
	h.renderCollectionUpdate(r.Context(), w, p, name, fmt.Sprintf("Saved %s record %s", name, rec.ID))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	name := chi.URLParam(r, "collection")
	status := chi.URLParam(r, "status")

	rec, err := h.service.SetStatus(r.Context(), p, name, chi.URLParam(r, "id"), status)
	if err != nil {
		h.renderFlash(r.Context(), w, statusFor(err), err.Error())
		return
	}
	h.renderCollectionUpdate(r.Context(), w, p, name, fmt.Sprintf("Record %s marked %s", rec.ID, status))
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	name := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteRecord(r.Context(), p, name, id); err != nil {
		h.renderFlash(r.Context(), w, statusFor(err), err.Error())
		return
	}
	h.renderCollectionUpdate(r.Context(), w, p, name, fmt.Sprintf("Deleted record %s", id))
}

type createUserSignals struct {
	NewUserEmail    string `json:"newUserEmail"`
	NewUserName     string `json:"newUserName"`
	NewUserPassword string `json:"newUserPassword"`
	NewUserRole     string `json:"newUserRole"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	var sig createUserSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "invalid user payload")
		return
	}
	u, err := h.service.CreateUser(r.Context(), p, sig.NewUserEmail, sig.NewUserPassword, sig.NewUserName, sig.NewUserRole)
	if err != nil {
		h.renderFlash(r.Context(), w, statusFor(err), err.Error())
		return
	}
	users, _ := h.service.ListUsers(r.Context(), p, "", 300)
	renderHTMLFragments(r.Context(), w, http.StatusOK,
		ui.Flash(fmt.Sprintf("User %s created", u.Email), "info"),
		ui.UsersTable(users),
	)
}

func (h *Handler) renderCollectionUpdate(ctx context.Context, w http.ResponseWriter, p *domain.Principal, name, message string) {
	view, err := h.collectionView(ctx, p, name)
	if err != nil {
		h.renderFlash(ctx, w, http.StatusOK, message)
		return
	}
	renderHTMLFragments(ctx, w, http.StatusOK,
		ui.Flash(message, "info"),
		ui.RecordsTable(view),
	)
}

func (h *Handler) collectionView(ctx context.Context, p *domain.Principal, name string) (ui.CollectionView, error) {
	c, err := h.service.Collection(ctx, p, name)
	if err != nil {
		return ui.CollectionView{}, err
	}
	records, err := h.service.ListRecords(ctx, p, c.Name, 200)
	if err != nil {
		return ui.CollectionView{}, err
	}
	return ui.CollectionView{
		Collection: c,
		Records:    records,
		CanCreate:  h.service.Can(p, application.PermRecordsCreate),
		CanReview:  h.service.Can(p, application.PermRecordsReview),
		CanDelete:  h.service.Can(p, application.PermRecordsDelete),
	}, nil
}

func (h *Handler) nav(p *domain.Principal) ui.Nav {
	return ui.Nav{
		User:      p,
		Dashboard: p.Role == domain.RoleAdmin || p.Role == domain.RoleMonitor,
		Users:     h.service.Can(p, application.PermUsersManage),
		Audit:     h.service.Can(p, application.PermAuditRead),
		Schema:    h.service.Can(p, application.PermMigrationsRead) && h.migrations != nil,
		Volunteer: p.Role == domain.RoleVolunteer,
	}
}
