// Package probe checks the liveness of external integrations and internal
// subsystems and turns every check into a monitor.Sample.
package probe

import (
	"context"
	"net/http"
	"strconv"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Adapter checks one source. Probe never returns an error: transport errors,
// timeouts, open circuits and unexpected responses become failure samples.
type Adapter interface {
	Source() monitor.SourceID
	Probe(ctx context.Context) monitor.Sample
}

// Interpret maps an HTTP status to a liveness outcome. authenticated tells
// whether the request carried credentials; an anonymous 401 or 403 proves
// the service is up, while a rejected credential degrades the integration.
// The returned text describes non-success outcomes.
func Interpret(status int, authenticated bool) (monitor.Outcome, string) {
	switch {
	case status >= 200 && status < 400:
		return monitor.OutcomeSuccess, ""
	case status == http.StatusBadRequest,
		status == http.StatusNotFound,
		status == http.StatusMethodNotAllowed,
		status == http.StatusUnprocessableEntity:
		return monitor.OutcomeSuccess, ""
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		if authenticated {
			return monitor.OutcomeDegraded, "credentials rejected: " + statusText(status)
		}
		return monitor.OutcomeSuccess, ""
	case status == http.StatusTooManyRequests:
		return monitor.OutcomeDegraded, "rate limited: " + statusText(status)
	case status >= 500:
		return monitor.OutcomeFailure, "server error: " + statusText(status)
	default:
		return monitor.OutcomeFailure, "unexpected response: " + statusText(status)
	}
}

func statusText(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status) + " " + text
}

func failure(source monitor.SourceID, msg string) monitor.Sample {
	return monitor.Sample{
		Source:  source,
		Kind:    monitor.KindHealthCheck,
		Outcome: monitor.OutcomeFailure,
		Error:   &msg,
	}
}
