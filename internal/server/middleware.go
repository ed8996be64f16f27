package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/version"
)

type contextKey string

const userDataKey contextKey = "user_data"

// corsMiddleware lets the farm's web UI, served from another origin, talk
// to the local daemon. Preflights are answered directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Max-Age", "300")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// versionGate rejects clients pinned to a different daemon version, so a
// stale web UI fails loudly instead of hitting changed endpoints.
func versionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := r.Header.Get("Transfer-Manager-Version")
		if requested != "" && requested != version.Version {
			writeError(w, http.StatusPreconditionFailed,
				fmt.Sprintf("you requested version %s but this is version %s", requested, version.Version))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userDataMiddleware lifts the per-request farm credentials out of the
// headers. The daemon holds no credentials of its own; every upstream call
// is made with whatever the caller sent.
func (s *Server) userDataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		farmHost := r.Header.Get("farm_host")
		if farmHost == "" {
			farmHost = s.cfg.FarmHost
		}
		ud := api.UserData{
			FarmHost:    strings.TrimRight(farmHost, "/"),
			APIToken:    r.Header.Get("api_token"),
			QMAuthToken: r.Header.Get("qm_auth_token"),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userDataKey, ud)))
	})
}

func userDataFrom(r *http.Request) api.UserData {
	ud, _ := r.Context().Value(userDataKey).(api.UserData)
	return ud
}
