package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/rupeeplan/api/internal/platform/firestore"
	pstorage "github.com/rupeeplan/api/internal/platform/storage"
	"github.com/rupeeplan/api/internal/repositories"
)

// RegistryDeps bundles the shared infrastructure every repository hangs off.
type RegistryDeps struct {
	Provider     *pfirestore.Provider
	Storage      *pstorage.Client
	AssetsBucket string
	Health       repositories.HealthRepository
}

// Registry assembles the Firestore-backed repository set behind the
// repositories.Registry contract so services can be wired from one place.
type Registry struct {
	provider      *pfirestore.Provider
	users         *UserRepository
	consultations *ConsultationRepository
	applications  *ApplicationRepository
	calculations  *CalculationRepository
	assets        *AssetRepository
	auditLogs     *AuditLogRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	users, err := NewUserRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	consultations, err := NewConsultationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	applications, err := NewApplicationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	calculations, err := NewCalculationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	assets, err := NewAssetRepository(deps.Provider, deps.Storage, deps.AssetsBucket)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      deps.Provider,
		users:         users,
		consultations: consultations,
		applications:  applications,
		calculations:  calculations,
		assets:        assets,
		auditLogs:     auditLogs,
		health:        deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Users returns the account repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Consultations returns the consultation repository.
func (r *Registry) Consultations() repositories.ConsultationRepository { return r.consultations }

// Applications returns the planning application repository.
func (r *Registry) Applications() repositories.ApplicationRepository { return r.applications }

// Calculations returns the calculator history repository.
func (r *Registry) Calculations() repositories.CalculationRepository { return r.calculations }

// Assets returns the signed upload/download repository.
func (r *Registry) Assets() repositories.AssetRepository { return r.assets }

// AuditLogs returns the audit trail repository.
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.auditLogs }

// Health returns the dependency health repository configured at startup.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a Firestore transaction. Repository calls made
// with the derived context still issue standalone operations; the transaction
// boundary only guarantees the closure retries as a unit.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry: not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	})
}
