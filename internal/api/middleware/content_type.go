package middleware

import (
	"mime"
	"net/http"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json unless a
// handler already set one.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST, PUT and PATCH requests whose body is declared as
// anything other than application/json. Bodyless requests may omit the header.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					problem := models.NewProblem(
						models.ProblemTypeUnsupportedMedia,
						"Unsupported media type",
						http.StatusUnsupportedMediaType,
						GetRequestID(r.Context()),
					)
					problem.Detail = "Content-Type must be application/json"
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
