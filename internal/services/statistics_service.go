package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

// ErrStatisticsInvalidInput indicates the overview query could not be interpreted.
var ErrStatisticsInvalidInput = errors.New("statistics: invalid input")

// Dashboard rows render in lifecycle order, so the breakdowns enumerate
// statuses explicitly rather than ranging over a map.
var (
	consultationStatusOrder = []domain.ConsultationStatus{
		domain.ConsultationStatusPending,
		domain.ConsultationStatusScheduled,
		domain.ConsultationStatusInProgress,
		domain.ConsultationStatusCompleted,
		domain.ConsultationStatusCancelled,
	}
	applicationStatusOrder = []domain.ApplicationStatus{
		domain.ApplicationStatusSubmitted,
		domain.ApplicationStatusUnderReview,
		domain.ApplicationStatusApproved,
		domain.ApplicationStatusRejected,
	}
)

// StatisticsServiceDeps bundles the repositories the admin dashboard aggregates.
type StatisticsServiceDeps struct {
	Consultations repositories.ConsultationRepository
	Applications  repositories.ApplicationRepository
	Calculations  repositories.CalculationRepository
	Clock         func() time.Time
}

type statisticsService struct {
	consultations repositories.ConsultationRepository
	applications  repositories.ApplicationRepository
	calculations  repositories.CalculationRepository
	clock         func() time.Time
}

var _ StatisticsService = (*statisticsService)(nil)

// NewStatisticsService assembles the dashboard aggregation service.
func NewStatisticsService(deps StatisticsServiceDeps) (StatisticsService, error) {
	if deps.Consultations == nil {
		return nil, errors.New("statistics service: consultation repository is required")
	}
	if deps.Applications == nil {
		return nil, errors.New("statistics service: application repository is required")
	}
	if deps.Calculations == nil {
		return nil, errors.New("statistics service: calculation repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &statisticsService{
		consultations: deps.Consultations,
		applications:  deps.Applications,
		calculations:  deps.Calculations,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *statisticsService) Overview(ctx context.Context, query StatisticsQuery) (TaxServiceStatistics, error) {
	var segment *domain.TaxSegment
	if strings.TrimSpace(string(query.Segment)) != "" {
		normalized, err := normalizeTaxSegment(query.Segment)
		if err != nil {
			return TaxServiceStatistics{}, fmt.Errorf("%w: %s", ErrStatisticsInvalidInput, err)
		}
		segment = &normalized
	}

	now := s.clock()

	consultations, err := s.consultationBreakdown(ctx, segment)
	if err != nil {
		return TaxServiceStatistics{}, err
	}
	applications, err := s.applicationBreakdown(ctx, segment)
	if err != nil {
		return TaxServiceStatistics{}, err
	}
	calculations, err := s.calculationActivity(ctx, segment, now)
	if err != nil {
		return TaxServiceStatistics{}, err
	}
	savings, err := s.calculations.SumProjectedSavings(ctx, repositories.CalculationCountFilter{Segment: segment})
	if err != nil {
		return TaxServiceStatistics{}, err
	}

	stats := TaxServiceStatistics{
		Consultations:    consultations,
		Applications:     applications,
		Calculations:     calculations,
		ProjectedSavings: savings,
		GeneratedAt:      now,
	}
	if segment != nil {
		stats.Segment = *segment
	}
	return stats, nil
}

func (s *statisticsService) consultationBreakdown(ctx context.Context, segment *domain.TaxSegment) (domain.StatusBreakdown, error) {
	breakdown := domain.StatusBreakdown{ByStatus: make(map[string]int64, len(consultationStatusOrder))}
	for _, status := range consultationStatusOrder {
		count, err := s.consultations.Count(ctx, repositories.ConsultationCountFilter{Segment: segment, Status: &status})
		if err != nil {
			return domain.StatusBreakdown{}, err
		}
		breakdown.ByStatus[string(status)] = count
		breakdown.Total += count
	}
	return breakdown, nil
}

func (s *statisticsService) applicationBreakdown(ctx context.Context, segment *domain.TaxSegment) (domain.StatusBreakdown, error) {
	breakdown := domain.StatusBreakdown{ByStatus: make(map[string]int64, len(applicationStatusOrder))}
	for _, status := range applicationStatusOrder {
		count, err := s.applications.Count(ctx, repositories.ApplicationCountFilter{Segment: segment, Status: &status})
		if err != nil {
			return domain.StatusBreakdown{}, err
		}
		breakdown.ByStatus[string(status)] = count
		breakdown.Total += count
	}
	return breakdown, nil
}

// calculationActivity reports lifetime plus rolling-window calculator usage.
// "Today" starts at UTC midnight; the week and month windows slide relative
// to the current instant.
func (s *statisticsService) calculationActivity(ctx context.Context, segment *domain.TaxSegment, now time.Time) (domain.ActivityBreakdown, error) {
	total, err := s.calculations.Count(ctx, repositories.CalculationCountFilter{Segment: segment})
	if err != nil {
		return domain.ActivityBreakdown{}, err
	}

	activity := domain.ActivityBreakdown{Total: total}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	activity.Today, err = s.countCalculationsSince(ctx, segment, dayStart)
	if err != nil {
		return domain.ActivityBreakdown{}, err
	}
	activity.ThisWeek, err = s.countCalculationsSince(ctx, segment, now.AddDate(0, 0, -7))
	if err != nil {
		return domain.ActivityBreakdown{}, err
	}
	activity.ThisMonth, err = s.countCalculationsSince(ctx, segment, now.AddDate(0, 0, -30))
	if err != nil {
		return domain.ActivityBreakdown{}, err
	}
	return activity, nil
}

func (s *statisticsService) countCalculationsSince(ctx context.Context, segment *domain.TaxSegment, after time.Time) (int64, error) {
	return s.calculations.Count(ctx, repositories.CalculationCountFilter{Segment: segment, CreatedAfter: &after})
}
