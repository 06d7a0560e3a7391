package clients

import (
	"net/http"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/common"
)

// tenantRoundTripper stamps every backend request with the tenant header
type tenantRoundTripper struct {
	tenant string
	next   http.RoundTripper
}

func newTenantRoundTripper(tenant string, next http.RoundTripper) http.RoundTripper {
	if tenant == "" {
		return next
	}
	return &tenantRoundTripper{tenant: tenant, next: next}
}

func (t *tenantRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	r := req.Clone(req.Context())
	r.Header.Set(common.TenantHeader, t.tenant)
	return t.next.RoundTrip(r)
}
