package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rupeeplan/api/internal/platform/config"
	"github.com/rupeeplan/api/internal/platform/mail"
	"github.com/rupeeplan/api/internal/repositories"
	"github.com/rupeeplan/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Accounts      services.AccountService
	Consultations services.ConsultationService
	Applications  services.ApplicationService
	Calculations  services.CalculationService
	Calculator    services.TaxCalculatorService
	Content       services.ContentService
	Notifications services.NotificationService
	Statistics    services.StatisticsService
	System        services.SystemService
	Audit         services.AuditLogService
}

// Collaborators carries the non-repository dependencies the service layer
// needs: session minting, the verification code store, outbound mail, the
// notification queue, and build metadata surfaced on health endpoints.
type Collaborators struct {
	Sessions  services.SessionIssuer
	Codes     services.VerificationCodeStore
	Mailer    mail.Sender
	Publisher services.NotificationPublisher
	Build     services.BuildInfo
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		deps := services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      clock,
		}
		if collab.Logger != nil {
			deps.Logger = collab.Logger.Named("audit").Sugar()
		}
		auditSvc, err := services.NewAuditLogService(deps)
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	svc.Calculator = services.NewTaxEngine()
	svc.Content = services.NewContentService()

	if calcRepo := reg.Calculations(); calcRepo != nil {
		calcSvc, err := services.NewCalculationService(services.CalculationServiceDeps{
			Calculations: calcRepo,
			Engine:       svc.Calculator,
			Clock:        clock,
			Logger:       serviceLogger(collab.Logger, "calculation"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build calculation service: %w", err)
		}
		svc.Calculations = calcSvc
	}

	if consultationRepo := reg.Consultations(); consultationRepo != nil {
		consultationSvc, err := services.NewConsultationService(services.ConsultationServiceDeps{
			Consultations: consultationRepo,
			Clock:         clock,
			Notifications: collab.Publisher,
			Logger:        serviceLogger(collab.Logger, "consultation"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build consultation service: %w", err)
		}
		svc.Consultations = consultationSvc
	}

	if applicationRepo := reg.Applications(); applicationRepo != nil {
		if assetRepo := reg.Assets(); assetRepo != nil {
			applicationSvc, err := services.NewApplicationService(services.ApplicationServiceDeps{
				Applications:  applicationRepo,
				Assets:        assetRepo,
				Clock:         clock,
				Notifications: collab.Publisher,
				Logger:        serviceLogger(collab.Logger, "application"),
			})
			if err != nil {
				return Services{}, fmt.Errorf("build application service: %w", err)
			}
			svc.Applications = applicationSvc
		}
	}

	if collab.Mailer != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Mailer: collab.Mailer,
			Clock:  clock,
			Logger: serviceLogger(collab.Logger, "notification"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil && collab.Codes != nil && collab.Sessions != nil && svc.Notifications != nil {
		accountSvc, err := services.NewAccountService(services.AccountServiceDeps{
			Users:      usersRepo,
			Codes:      collab.Codes,
			Sessions:   collab.Sessions,
			Mailer:     svc.Notifications,
			BcryptCost: cfg.Auth.BcryptCost,
			Clock:      clock,
			Logger:     serviceLogger(collab.Logger, "account"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build account service: %w", err)
		}
		svc.Accounts = accountSvc
	}

	if reg.Consultations() != nil && reg.Applications() != nil && reg.Calculations() != nil {
		statsSvc, err := services.NewStatisticsService(services.StatisticsServiceDeps{
			Consultations: reg.Consultations(),
			Applications:  reg.Applications(),
			Calculations:  reg.Calculations(),
			Clock:         clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build statistics service: %w", err)
		}
		svc.Statistics = statsSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            collab.Build,
			Audit:            svc.Audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func serviceLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		named.Debug(name+" log", zFields...)
	}
}
