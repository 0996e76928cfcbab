package middleware

import (
	"net/http"
	"strings"
)

const (
	corsHeaders = "Content-Type, Authorization, X-Request-Id"
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// CORS admits cross-origin calls from the production-control app. A "*"
// entry opens the API to any origin without credentials; explicit origins are
// matched case-insensitively and may send credentials. Preflight requests end
// here with 204.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" {
				_, explicit := allowed[strings.ToLower(origin)]
				switch {
				case explicit:
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
				case wildcard:
					h.Set("Access-Control-Allow-Origin", "*")
				}
				if explicit || wildcard {
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Expose-Headers", "X-Request-Id")
					h.Set("Access-Control-Max-Age", "600")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
