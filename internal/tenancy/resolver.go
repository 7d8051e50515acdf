package tenancy

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"gorm.io/gorm"
)

// reservedLabels never resolve to a tenant even when a matching slug exists.
var reservedLabels = map[string]struct{}{
	"www":      {},
	"app":      {},
	"api":      {},
	"admin":    {},
	"platform": {},
	"mail":     {},
}

// IsReservedLabel reports whether a slug collides with a platform
// subdomain and can therefore never be routed to.
func IsReservedLabel(slug string) bool {
	_, reserved := reservedLabels[normalizeSlug(slug)]
	return reserved
}

type tenantLookup interface {
	FindResolvableBySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

// Resolver maps a request host to a tenant. A nil result means "platform
// domain or no such tenant"; callers must fail closed on nil, never
// substitute a default tenant.
type Resolver struct {
	lookup  tenantLookup
	apex    string
	devHost string
}

// NewResolver builds a resolver against the configured apex domain.
func NewResolver(lookup tenantLookup, cfg config.TenancyConfig) (*Resolver, error) {
	if lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant lookup is required")
	}
	apex := normalizeHost(cfg.ApexDomain)
	if apex == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "apex domain is required")
	}
	return &Resolver{
		lookup:  lookup,
		apex:    apex,
		devHost: normalizeHost(cfg.DevHost),
	}, nil
}

// Resolve returns the tenant for the request host, or nil for platform
// domains, reserved labels, unknown slugs and non-resolvable tenants.
// The explicit slug is honored only on the bare development host. No
// result is ever cached: tenant status changes take effect immediately.
func (r *Resolver) Resolve(ctx context.Context, host, explicitSlug string) (*models.Tenant, error) {
	slug := r.candidateSlug(host, explicitSlug)
	if slug == "" {
		return nil, nil
	}
	return r.lookup.FindResolvableBySlug(ctx, slug)
}

func (r *Resolver) candidateSlug(host, explicitSlug string) string {
	host = normalizeHost(host)

	if r.devHost != "" && host == r.devHost {
		return normalizeSlug(explicitSlug)
	}
	if host == "" || host == r.apex {
		return ""
	}

	label, rest, found := strings.Cut(host, ".")
	if !found || label == "" {
		return ""
	}
	if rest != r.apex {
		return ""
	}
	if _, reserved := reservedLabels[label]; reserved {
		return ""
	}
	return label
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if stripped, _, err := net.SplitHostPort(host); err == nil {
		host = stripped
	}
	return strings.TrimSuffix(host, ".")
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Repository looks up tenants under the platform scope; it is one of the
// two bootstrap operations allowed to cross tenant boundaries.
type Repository struct {
	runner ScopedRunner
}

// NewRepository binds tenant lookups to the scoped runner.
func NewRepository(runner ScopedRunner) (*Repository, error) {
	if runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scoped runner is required")
	}
	return &Repository{runner: runner}, nil
}

// FindResolvableBySlug loads a tenant whose status allows routing.
// Unknown slugs and suspended/cancelled tenants return nil, nil.
func (r *Repository) FindResolvableBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := r.runner.InScope(ctx, PlatformScope(), func(tx *gorm.DB) error {
		var row models.Tenant
		if err := tx.Where("slug = ?", slug).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup tenant")
		}
		if row.Status.IsResolvable() {
			tenant = &row
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}
