package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanizio/adept-crm/internal/logger"
)

func TestForceHTTPS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		name    string
		enabled bool
		host    string
		proto   string
		want    int
	}{
		{"disabled", false, "crm.example.com", "", http.StatusNoContent},
		{"redirect", true, "crm.example.com", "", http.StatusPermanentRedirect},
		{"localhost", true, "localhost:8080", "", http.StatusNoContent},
		{"behind proxy", true, "crm.example.com", "https", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://"+tc.host+"/api/lead", nil)
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			rec := httptest.NewRecorder()
			ForceHTTPS(tc.enabled)(ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusPermanentRedirect && rec.Header().Get("Location") != "https://crm.example.com/api/lead" {
				t.Fatalf("location = %q", rec.Header().Get("Location"))
			}
		})
	}
}

func TestSecurity_HeadersSurviveWrite(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/lead", nil))
	for _, k := range []string{"Strict-Transport-Security", "Content-Security-Policy", "X-Content-Type-Options", "Cache-Control"} {
		if rec.Header().Get(k) == "" {
			t.Fatalf("header %s missing", k)
		}
	}
}

func TestRequestLogger_UsesRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(chimw.RequestID, RequestLogger(zap.New(core).Sugar()))
	r.Get("/api/{entity}/{id}", func(w http.ResponseWriter, req *http.Request) {
		logger.FromContext(req.Context()).Infow("inside")
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lead/secret-id", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("request lines = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/api/{entity}/{id}" || fields["status"] != int64(http.StatusOK) {
		t.Fatalf("fields = %v", fields)
	}
	if logs.FilterMessage("inside").Len() != 1 {
		t.Fatal("handler did not receive the request logger")
	}
}
