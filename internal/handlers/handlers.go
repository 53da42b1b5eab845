// Package handlers implements the HTTP surface: session authentication,
// the dashboard, expense and budget forms, CSV export and account pages.
package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"finsight/internal/auth"
	"finsight/internal/models"
	"finsight/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour

	loginPath     = "/accounts/login/"
	dashboardPath = "/dashboard/"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	templateDir  string
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, templateDir string, secureCookie bool) *Handlers {
	return &Handlers{db: db, templateDir: templateDir, secureCookie: secureCookie}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}

		info, err := h.db.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}

		// Rolling session: renew once past the halfway point so active
		// users stay logged in while stale sessions expire.
		if time.Until(info.ExpiresAt) < SessionDuration/2 {
			newExpiresAt := time.Now().Add(SessionDuration)
			if err := h.db.RenewSession(r.Context(), cookie.Value, newExpiresAt); err == nil {
				h.setSessionCookie(w, cookie.Value)
			}
			// If renewal fails, just continue with the current session
		}

		ctx := context.WithValue(r.Context(), UserContextKey, info.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionUser returns the user for the request's session cookie, or nil.
// Used on pages that behave differently for logged-in visitors.
func (h *Handlers) sessionUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := h.db.ValidateSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return user
}

// Landing renders the landing page for anonymous visitors. Authenticated
// users go straight to the dashboard.
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(r) != nil {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return
	}
	h.render(w, "landing.html", nil)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(r) != nil {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return
	}
	h.render(w, "login.html", LoginViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.render(w, "login.html", LoginViewModel{Error: "Username and password are required"})
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.render(w, "login.html", LoginViewModel{Error: "Invalid username or password"})
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		slog.ErrorContext(r.Context(), "Failed to start session", "error", err, "username", username)
		h.render(w, "login.html", LoginViewModel{Error: "An error occurred. Please try again."})
		return
	}

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(SessionDuration)
	if err := h.db.CreateSession(r.Context(), token, userID, expiresAt); err != nil {
		return err
	}
	h.setSessionCookie(w, token)
	return nil
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			slog.ErrorContext(r.Context(), "Failed to delete session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Error    string
	Username string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(r) != nil {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return
	}
	h.render(w, "register.html", RegisterViewModel{})
}

// Register handles the registration form submission and logs the new
// user in on success.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "register.html", RegisterViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	confirm := r.FormValue("password_confirm")

	vm := RegisterViewModel{Username: username}
	switch {
	case username == "":
		vm.Error = "Username is required"
	case len(password) < 8:
		vm.Error = "Password must be at least 8 characters"
	case password != confirm:
		vm.Error = "Passwords do not match"
	}
	if vm.Error != "" {
		h.render(w, "register.html", vm)
		return
	}

	if _, err := h.db.GetUserByUsername(r.Context(), username); err == nil {
		vm.Error = "That username is already taken"
		h.render(w, "register.html", vm)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		slog.ErrorContext(r.Context(), "User lookup failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		slog.ErrorContext(r.Context(), "Password hashing failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := h.db.CreateUser(r.Context(), username, hash)
	if err != nil {
		slog.ErrorContext(r.Context(), "User creation failed", "error", err, "username", username)
		vm.Error = "Could not create the account. Please try again."
		h.render(w, "register.html", vm)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		slog.ErrorContext(r.Context(), "Failed to start session", "error", err, "username", username)
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

func (h *Handlers) render(w http.ResponseWriter, viewName string, data any) {
	h.renderStatus(w, http.StatusOK, viewName, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, status int, viewName string, data any) {
	tmpl, err := template.ParseFiles(
		filepath.Join(h.templateDir, "base.html"),
		filepath.Join(h.templateDir, viewName),
	)
	if err != nil {
		slog.Error("Template error", "error", err, "view", viewName)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		slog.Error("Template execution error", "error", err, "view", viewName)
	}
}
