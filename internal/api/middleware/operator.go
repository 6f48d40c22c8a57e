package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
)

// operatorKey is the context key for the authenticated operator.
type operatorKey struct{}

// RequireOperator authenticates admin requests with a static bearer token.
// tokens maps each accepted token to the operator name recorded for audit.
// With no tokens configured every request is rejected.
func RequireOperator(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, r, "missing or malformed authorization header")
				return
			}

			operator, ok := matchToken(tokens, token)
			if !ok {
				writeUnauthorized(w, r, "invalid operator token")
				return
			}

			annotateOperator(r.Context(), operator)
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("leaguepulse.operator", operator))

			ctx := context.WithValue(r.Context(), operatorKey{}, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator returns the authenticated operator name, or "" outside
// RequireOperator.
func GetOperator(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok {
		return op
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// matchToken compares against every configured token so timing does not
// depend on which one matched.
func matchToken(tokens map[string]string, token string) (string, bool) {
	var operator string
	found := false
	for candidate, name := range tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			operator = name
			found = true
		}
	}
	return operator, found
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="leaguepulse-admin"`)
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}
