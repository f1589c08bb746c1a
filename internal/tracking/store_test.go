package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chainflow-labs/chainflow/internal/cache"
	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/routing"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	c := cache.NewLRUCache(1000)
	t.Cleanup(func() { c.Close() })
	return NewStore(c, routing.NewOptimizer(1), 0, 1)
}

var coffee = CreateShipmentInput{
	Product:     "Organic Coffee Beans",
	Origin:      "Colombia",
	Destination: "Germany",
	Priority:    domain.PrioritySustainability,
}

func TestStore_Create(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	sh, route, err := s.Create(ctx, "tenant-1", coffee)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(sh.ID, "TRK-") || len(sh.ID) != 12 {
		t.Errorf("unexpected tracking ID %q", sh.ID)
	}
	if sh.Status != domain.ShipmentProcessing || sh.Progress != 0 {
		t.Errorf("expected Processing/0, got %s/%d", sh.Status, sh.Progress)
	}
	if sh.CurrentLocation != "Colombia" {
		t.Errorf("expected current location Colombia, got %s", sh.CurrentLocation)
	}
	if sh.RouteID != route.ID || len(sh.Route) != len(route.Path) {
		t.Error("shipment route does not match planned route")
	}
	wantETA := sh.CreatedAt.Add(time.Duration(route.TimeDays) * 24 * time.Hour)
	if !sh.EstimatedDelivery.Equal(wantETA) {
		t.Errorf("expected ETA %v, got %v", wantETA, sh.EstimatedDelivery)
	}

	got, err := s.Get(ctx, "tenant-1", sh.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Product != coffee.Product {
		t.Errorf("expected product %s, got %s", coffee.Product, got.Product)
	}
}

func TestStore_CreateDefaultsPriority(t *testing.T) {
	s := newMemoryStore(t)
	in := coffee
	in.Priority = ""
	sh, _, err := s.Create(context.Background(), "tenant-1", in)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sh.Priority != domain.PriorityCost {
		t.Errorf("expected Cost priority, got %s", sh.Priority)
	}
}

func TestStore_CreateInvalid(t *testing.T) {
	s := newMemoryStore(t)
	_, _, err := s.Create(context.Background(), "tenant-1", CreateShipmentInput{Product: "x", Origin: " "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newMemoryStore(t)
	if _, err := s.Get(context.Background(), "tenant-1", "TRK-NOPE"); !errors.Is(err, ErrShipmentNotFound) {
		t.Errorf("expected ErrShipmentNotFound, got %v", err)
	}
	if _, err := s.Advance(context.Background(), "tenant-1", "TRK-NOPE", 10); !errors.Is(err, ErrShipmentNotFound) {
		t.Errorf("expected ErrShipmentNotFound, got %v", err)
	}
}

func TestStore_AdvanceThresholds(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	sh, _, _ := s.Create(ctx, "tenant-1", coffee)

	steps := []struct {
		step     int
		progress int
		status   domain.ShipmentStatus
		location string
	}{
		{10, 10, domain.ShipmentProcessing, "Colombia"},
		{15, 25, domain.ShipmentShipped, "Distribution Center"},
		{25, 50, domain.ShipmentInTransit, "Transit Hub"},
		{25, 75, domain.ShipmentOutForDelivery, "Local Facility"},
		{40, 100, domain.ShipmentDelivered, "Germany"},
	}

	for _, st := range steps {
		got, err := s.Advance(ctx, "tenant-1", sh.ID, st.step)
		if err != nil {
			t.Fatalf("Advance(%d) failed: %v", st.step, err)
		}
		if got.Progress != st.progress || got.Status != st.status || got.CurrentLocation != st.location {
			t.Errorf("after +%d expected %d/%s/%s, got %d/%s/%s",
				st.step, st.progress, st.status, st.location,
				got.Progress, got.Status, got.CurrentLocation)
		}
	}

	if _, err := s.Advance(ctx, "tenant-1", sh.ID, 10); !errors.Is(err, ErrAlreadyDelivered) {
		t.Errorf("expected ErrAlreadyDelivered, got %v", err)
	}
}

func TestStore_AutoAdvanceIsMonotone(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	sh, _, _ := s.Create(ctx, "tenant-1", coffee)

	rank := map[domain.ShipmentStatus]int{
		domain.ShipmentProcessing:     0,
		domain.ShipmentShipped:        1,
		domain.ShipmentInTransit:      2,
		domain.ShipmentOutForDelivery: 3,
		domain.ShipmentDelivered:      4,
	}

	prevProgress, prevRank := 0, 0
	for i := 0; i < 20; i++ {
		got, err := s.Advance(ctx, "tenant-1", sh.ID, 0)
		if errors.Is(err, ErrAlreadyDelivered) {
			break
		}
		if err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		delta := got.Progress - prevProgress
		if got.Progress < 100 && (delta < MinAutoStep || delta > MaxAutoStep) {
			t.Errorf("auto step %d outside [%d,%d]", delta, MinAutoStep, MaxAutoStep)
		}
		if got.Progress > 100 {
			t.Fatalf("progress exceeded 100: %d", got.Progress)
		}
		if rank[got.Status] < prevRank {
			t.Fatalf("status went backwards to %s", got.Status)
		}
		prevProgress, prevRank = got.Progress, rank[got.Status]
	}
	if prevProgress != 100 {
		t.Errorf("expected delivery within 20 steps, progress %d", prevProgress)
	}
}

func TestStore_ListIsTenantScoped(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := s.Create(ctx, "tenant-a", coffee); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, _, err := s.Create(ctx, "tenant-b", coffee); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a, err := s.List(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(a) != 3 {
		t.Errorf("expected 3 shipments for tenant-a, got %d", len(a))
	}
	b, _ := s.List(ctx, "tenant-b")
	if len(b) != 1 {
		t.Errorf("expected 1 shipment for tenant-b, got %d", len(b))
	}
	if _, err := s.Get(ctx, "tenant-b", a[0].ID); !errors.Is(err, ErrShipmentNotFound) {
		t.Error("tenant-b must not see tenant-a shipments")
	}
}

func TestStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer rc.Close()

	s := NewStore(rc, routing.NewOptimizer(2), time.Hour, 2)
	ctx := context.Background()

	sh, _, err := s.Create(ctx, "tenant-1", coffee)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Advance(ctx, "tenant-1", sh.ID, 30); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	// A second store over the same Redis sees the update.
	other := NewStore(rc, routing.NewOptimizer(3), time.Hour, 3)
	got, err := other.Get(ctx, "tenant-1", sh.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress != 30 || got.Status != domain.ShipmentShipped {
		t.Errorf("expected 30/Shipped, got %d/%s", got.Progress, got.Status)
	}

	list, err := other.List(ctx, "tenant-1")
	if err != nil || len(list) != 1 {
		t.Errorf("expected 1 listed shipment, got %d (%v)", len(list), err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := other.Get(ctx, "tenant-1", sh.ID); !errors.Is(err, ErrShipmentNotFound) {
		t.Errorf("expected shipment to expire, got %v", err)
	}
}

func TestStore_AdvanceRefreshesIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer rc.Close()

	s := NewStore(rc, routing.NewOptimizer(4), time.Hour, 4)
	ctx := context.Background()

	sh, _, err := s.Create(ctx, "tenant-1", coffee)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Advanced at 50 minutes, the record lives to 110; the index must too.
	mr.FastForward(50 * time.Minute)
	if _, err := s.Advance(ctx, "tenant-1", sh.ID, 30); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	list, err := s.List(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != sh.ID {
		t.Errorf("expected advanced shipment to stay listed, got %d", len(list))
	}
}

func TestStore_ListPrunesExpiredEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer rc.Close()

	s := NewStore(rc, routing.NewOptimizer(5), time.Hour, 5)
	ctx := context.Background()

	old, _, err := s.Create(ctx, "tenant-1", coffee)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mr.FastForward(40 * time.Minute)
	fresh, _, err := s.Create(ctx, "tenant-1", coffee)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	list, err := s.List(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh shipment, got %d", len(list))
	}

	ids, err := s.index(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	for _, id := range ids {
		if id == old.ID {
			t.Error("expired shipment still in the index")
		}
	}
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		progress int
		want     domain.ShipmentStatus
	}{
		{0, domain.ShipmentProcessing},
		{24, domain.ShipmentProcessing},
		{25, domain.ShipmentShipped},
		{49, domain.ShipmentShipped},
		{50, domain.ShipmentInTransit},
		{75, domain.ShipmentOutForDelivery},
		{99, domain.ShipmentOutForDelivery},
		{100, domain.ShipmentDelivered},
	}
	for _, tt := range tests {
		if got, _ := StageFor(tt.progress); got != tt.want {
			t.Errorf("StageFor(%d): expected %s, got %s", tt.progress, tt.want, got)
		}
	}
}
