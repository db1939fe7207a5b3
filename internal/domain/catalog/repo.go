package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository provides read access to the service, package and provider
// catalogs.
type Repository interface {
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*Package, error)
	// GetPackageLimit returns the per-category limit for a package, or nil
	// when the category is not covered by the package at all.
	GetPackageLimit(ctx context.Context, packageID, categoryID uuid.UUID) (*PackageLimit, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	// ProviderDocumentIssues returns the names of required documents that
	// are missing or expired as of the given date.
	ProviderDocumentIssues(ctx context.Context, providerID uuid.UUID, at time.Time) (missing, expired []string, err error)
}
