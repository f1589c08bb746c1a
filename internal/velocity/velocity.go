// Package velocity counts recent trust assessments per supplier.
package velocity

import (
	"context"
	"fmt"
	"time"
)

// DefaultWindow is used when no window is configured.
const DefaultWindow = 24 * time.Hour

// AssessmentCounter is the storage needed to count assessments.
type AssessmentCounter interface {
	CountTrustAssessmentsBySupplier(ctx context.Context, tenantID string, supplierID string, since time.Time) (int64, error)
}

// Service reports how often a supplier has been assessed within a window.
type Service struct {
	repo   AssessmentCounter
	window time.Duration
	now    func() time.Time
}

// NewService creates a velocity service over repo.
func NewService(repo AssessmentCounter, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:   repo,
		window: window,
		now:    time.Now,
	}
}

// Window returns the counting window.
func (s *Service) Window() time.Duration {
	return s.window
}

// AssessmentCount returns the number of trust assessments recorded for a
// supplier since now minus the window. It matches the rule engine's
// assessment counter signature.
func (s *Service) AssessmentCount(ctx context.Context, tenantID, supplierID string) (int64, error) {
	if tenantID == "" || supplierID == "" {
		return 0, fmt.Errorf("tenantID and supplierID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := s.now().Add(-s.window).UTC()
	count, err := s.repo.CountTrustAssessmentsBySupplier(ctx, tenantID, supplierID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}
