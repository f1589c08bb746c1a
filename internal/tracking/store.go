// Package tracking keeps per-tenant shipment tracking records in a cache.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrShipmentNotFound = errors.New("shipment not found")
	ErrAlreadyDelivered = errors.New("shipment already delivered")
	ErrInvalidInput     = errors.New("invalid shipment input")
)

const indexKey = "shipments:index"

// Progress advance bounds used when the caller does not pick a step.
const (
	MinAutoStep = 10
	MaxAutoStep = 25
)

// RoutePlanner plans the route a new shipment will follow.
type RoutePlanner interface {
	OptimizeRoute(ctx context.Context, req domain.RouteRequest) *domain.RouteResult
}

// CreateShipmentInput describes a shipment to start tracking.
type CreateShipmentInput struct {
	Product     string          `json:"product" validate:"required"`
	Origin      string          `json:"origin" validate:"required"`
	Destination string          `json:"destination" validate:"required"`
	Priority    domain.Priority `json:"priority"`
}

// Store is an explicit key-value store of tracked shipments.
// Writes are serialized so the per-tenant index stays consistent.
type Store struct {
	cache   domain.Cache
	planner RoutePlanner
	ttl     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewStore creates a store over cache. ttl bounds record lifetime; zero keeps
// records until the cache evicts them.
func NewStore(cache domain.Cache, planner RoutePlanner, ttl time.Duration, seed uint64) *Store {
	return &Store{
		cache:   cache,
		planner: planner,
		ttl:     ttl,
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create plans a route and registers a new shipment in Processing state.
func (s *Store) Create(ctx context.Context, tenantID string, in CreateShipmentInput) (*domain.Shipment, *domain.RouteResult, error) {
	if strings.TrimSpace(in.Product) == "" || strings.TrimSpace(in.Origin) == "" || strings.TrimSpace(in.Destination) == "" {
		return nil, nil, fmt.Errorf("%w: product, origin and destination are required", ErrInvalidInput)
	}
	in.Priority = in.Priority.OrDefault()

	route := s.planner.OptimizeRoute(ctx, domain.RouteRequest{
		Origin:      in.Origin,
		Destination: in.Destination,
		Priority:    in.Priority,
	})
	route.TenantID = tenantID

	now := s.now()
	sh := &domain.Shipment{
		ID:                newTrackingID(),
		TenantID:          tenantID,
		Product:           in.Product,
		Origin:            in.Origin,
		Destination:       in.Destination,
		Priority:          in.Priority,
		RouteID:           route.ID,
		Route:             route.Path,
		Status:            domain.ShipmentProcessing,
		CurrentLocation:   in.Origin,
		EstimatedDelivery: now.Add(time.Duration(route.TimeDays) * 24 * time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.SetShipment(ctx, tenantID, sh, s.ttl); err != nil {
		return nil, nil, fmt.Errorf("failed to store shipment: %w", err)
	}
	if err := s.addToIndex(ctx, tenantID, sh.ID); err != nil {
		return nil, nil, err
	}
	return sh, route, nil
}

// Get returns a shipment or ErrShipmentNotFound.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*domain.Shipment, error) {
	sh, err := s.cache.GetShipment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}
	if sh == nil {
		return nil, ErrShipmentNotFound
	}
	return sh, nil
}

// Advance moves a shipment forward by step percentage points, or by a random
// 10-25 when step <= 0. Progress is capped at 100.
func (s *Store) Advance(ctx context.Context, tenantID, id string, step int) (*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sh.Status == domain.ShipmentDelivered {
		return nil, ErrAlreadyDelivered
	}

	if step <= 0 {
		step = MinAutoStep + s.rng.IntN(MaxAutoStep-MinAutoStep+1)
	}
	sh.Progress = min(100, sh.Progress+step)

	status, location := StageFor(sh.Progress)
	sh.Status = status
	if status == domain.ShipmentDelivered {
		location = sh.Destination
	} else if status == domain.ShipmentProcessing {
		location = sh.Origin
	}
	sh.CurrentLocation = location
	sh.UpdatedAt = s.now()

	if err := s.cache.SetShipment(ctx, tenantID, sh, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store shipment: %w", err)
	}
	// The index must outlive every record it names.
	if err := s.addToIndex(ctx, tenantID, sh.ID); err != nil {
		return nil, err
	}
	return sh, nil
}

// List returns the tenant's shipments, newest first. Index entries whose
// record has expired are dropped from the index.
func (s *Store) List(ctx context.Context, tenantID string) ([]*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.index(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Shipment, 0, len(ids))
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		sh, err := s.cache.GetShipment(ctx, tenantID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load shipment %s: %w", id, err)
		}
		if sh != nil {
			out = append(out, sh)
			live = append(live, id)
		}
	}
	if len(live) < len(ids) {
		if err := s.writeIndex(ctx, tenantID, live); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// StageFor maps progress to status and location label.
func StageFor(progress int) (domain.ShipmentStatus, string) {
	switch {
	case progress >= 100:
		return domain.ShipmentDelivered, "Destination"
	case progress >= 75:
		return domain.ShipmentOutForDelivery, "Local Facility"
	case progress >= 50:
		return domain.ShipmentInTransit, "Transit Hub"
	case progress >= 25:
		return domain.ShipmentShipped, "Distribution Center"
	default:
		return domain.ShipmentProcessing, "Origin"
	}
}

func (s *Store) index(ctx context.Context, tenantID string) ([]string, error) {
	data, err := s.cache.Get(ctx, tenantID, indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment index: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("corrupt shipment index: %w", err)
	}
	return ids, nil
}

// addToIndex records id, if missing, and rewrites the index so its TTL
// restarts. It must be called with s.mu held.
func (s *Store) addToIndex(ctx context.Context, tenantID, id string) error {
	ids, err := s.index(ctx, tenantID)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		ids = append(ids, id)
	}
	return s.writeIndex(ctx, tenantID, ids)
}

// writeIndex must be called with s.mu held.
func (s *Store) writeIndex(ctx context.Context, tenantID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, tenantID, indexKey, data, s.ttl); err != nil {
		return fmt.Errorf("failed to update shipment index: %w", err)
	}
	return nil
}

func newTrackingID() string {
	return "TRK-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
