package membership

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides access to members and beneficiaries.
type Repository interface {
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	GetBeneficiary(ctx context.Context, id uuid.UUID) (*Beneficiary, error)
	ListBeneficiaries(ctx context.Context, memberID uuid.UUID) ([]*Beneficiary, error)
	CreateBeneficiary(ctx context.Context, b *Beneficiary) error
	UpdateBeneficiaryStatus(ctx context.Context, id uuid.UUID, status Status) error
}
