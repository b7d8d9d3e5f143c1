package middleware

import (
	"net/http"

	"github.com/sluicehq/sluice/internal/tenant"
)

// TenantHeader is the request header that selects a tenant when header
// selection is enabled.
const TenantHeader = "X-Tenant-Id"

// Tenant returns an HTTP middleware that attaches the tenant for the request
// to its context. Requests use def unless allowHeader is set and the request
// carries a TenantHeader, in which case the header wins. A malformed header is
// rejected with 400.
func Tenant(def tenant.Context, allowHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := def
			if allowHeader {
				if h := r.Header.Get(TenantHeader); h != "" {
					parsed, err := tenant.New(h)
					if err != nil {
						writeAuthError(w, http.StatusBadRequest, "Invalid "+TenantHeader+" header")
						return
					}
					t = parsed
				}
			}
			annotate(r.Context(), func(li *logInfo) { li.tenant = t.String() })
			next.ServeHTTP(w, r.WithContext(tenant.With(r.Context(), t)))
		})
	}
}
