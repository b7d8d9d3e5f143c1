package middleware

import (
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// grantIPFactor scales the per-client grant limit into the limit for one
// address across all client ids.
const grantIPFactor = 4

// maxGrantForm bounds the form body read while keying grant requests.
const maxGrantForm = 64 << 10

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitGrants limits token requests per client address and client id,
// and per address across every client id so that rotating identifiers does
// not lift the limit. The client id is taken from HTTP Basic auth, the
// client_id form field or the client_id query parameter.
func RateLimitGrants(requestsPerMinute int) func(http.Handler) http.Handler {
	perIP := httprate.Limit(
		requestsPerMinute*grantIPFactor,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(slowDown),
	)
	perClient := httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, grantClientKey),
		httprate.WithLimitHandler(slowDown),
	)
	return func(next http.Handler) http.Handler {
		return perIP(perClient(next))
	}
}

// grantClientKey reads the client id of a grant request. Form bodies are
// parsed here and stay cached on the request for the handler.
func grantClientKey(r *http.Request) (string, error) {
	if id, _, ok := r.BasicAuth(); ok {
		return id, nil
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method == http.MethodPost && ct == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxGrantForm)
		if id := r.PostFormValue("client_id"); id != "" {
			return id, nil
		}
	}
	return r.URL.Query().Get("client_id"), nil
}

func slowDown(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"slow_down","error_description":"too many token requests"}`))
}
