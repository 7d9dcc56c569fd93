package http

import (
	"net/http"

	"github.com/Heshamoov/aid-app-admin-production/internal/session"
)

// sessionHook restores the per-request session from the pb_auth cookie,
// refreshes it, and writes the resulting cookie back before the response
// header goes out.
func (h *Handler) sessionHook(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.New(h.auth, h.logger)
		s.Restore(r.Context(), r.Header.Get("Cookie"))

		cw := &cookieWriter{ResponseWriter: w, session: s, opts: h.cookie}
		next.ServeHTTP(cw, r.WithContext(session.WithSession(r.Context(), s)))
		cw.flushCookie()
	})
}

type cookieWriter struct {
	http.ResponseWriter
	session *session.Session
	opts    session.CookieOptions
	written bool
}

func (w *cookieWriter) flushCookie() {
	if w.written {
		return
	}
	w.written = true
	http.SetCookie(w.ResponseWriter, w.session.Auth().ExportCookie(w.opts))
}

func (w *cookieWriter) WriteHeader(status int) {
	w.flushCookie()
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.flushCookie()
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func currentSession(r *http.Request) *session.Session {
	return session.FromContext(r.Context())
}
