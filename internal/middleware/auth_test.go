package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sshbridge/sshbridge/internal/config"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(RequireAllowedUser)
		r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
			if UserID(req) == 0 {
				t.Error("user ID missing from request context")
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestRequireAllowedUser(t *testing.T) {
	config.Cfg.AllowedUsers = []int64{42, 7}
	t.Cleanup(func() { config.Cfg.AllowedUsers = nil })

	r := newTestRouter(t)

	cases := []struct {
		path string
		want int
	}{
		{"/users/42/ping", http.StatusOK},
		{"/users/7/ping", http.StatusOK},
		{"/users/13/ping", http.StatusForbidden},
		{"/users/abc/ping", http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}

func TestEmptyAllowListRejectsEveryone(t *testing.T) {
	config.Cfg.AllowedUsers = nil

	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/users/1/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status %d, want 403", rec.Code)
	}
}
