// Package tenant resolves the StorageScheme of a tenant. The scheme is configuration:
// dualstore consumes it per call and never stores it.
package tenant

import (
	"fmt"
	"os"
	"strings"

	"github.com/unkn0wn-root/dualstore"
)

const (
	EnvDefaultScheme = "DUALSTORE_DEFAULT_SCHEME"
	EnvTenantSchemes = "DUALSTORE_TENANT_SCHEMES"
)

// Schemes maps tenants to schemes. Tenants not listed in ByTenant use Default.
type Schemes struct {
	Default  dualstore.StorageScheme
	ByTenant map[string]dualstore.StorageScheme
}

// For returns the scheme for tenantID. A zero Default is returned as is and rejected
// by the Store with ErrUnknownScheme.
func (s Schemes) For(tenantID string) dualstore.StorageScheme {
	if v, ok := s.ByTenant[tenantID]; ok {
		return v
	}
	return s.Default
}

// LoadSchemes reads the environment:
//
//	DUALSTORE_DEFAULT_SCHEME=durable_only            ("" => durable_only)
//	DUALSTORE_TENANT_SCHEMES=m1=cache_accelerated,m2=durable_only
func LoadSchemes() (Schemes, error) {
	return ParseSchemes(os.Getenv(EnvDefaultScheme), os.Getenv(EnvTenantSchemes))
}

func ParseSchemes(def, byTenant string) (Schemes, error) {
	out := Schemes{Default: dualstore.DurableOnly, ByTenant: map[string]dualstore.StorageScheme{}}
	if strings.TrimSpace(def) != "" {
		v, err := dualstore.ParseStorageScheme(def)
		if err != nil {
			return Schemes{}, fmt.Errorf("%s: %w", EnvDefaultScheme, err)
		}
		out.Default = v
	}
	for _, pair := range strings.Split(byTenant, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, raw, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return Schemes{}, fmt.Errorf("%s: malformed entry %q (want tenant=scheme)", EnvTenantSchemes, pair)
		}
		if _, dup := out.ByTenant[id]; dup {
			return Schemes{}, fmt.Errorf("%s: tenant %q listed twice", EnvTenantSchemes, id)
		}
		v, err := dualstore.ParseStorageScheme(raw)
		if err != nil {
			return Schemes{}, fmt.Errorf("%s: tenant %q: %w", EnvTenantSchemes, id, err)
		}
		out.ByTenant[id] = v
	}
	return out, nil
}
