package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainflow-labs/chainflow/internal/bus"
	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/rules"
	"github.com/chainflow-labs/chainflow/internal/verify"
)

func newPipeline(t *testing.T) *verify.Pipeline {
	t.Helper()
	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.ReloadRules(rules.StarterRules("tenant-test")); err != nil {
		t.Fatal(err)
	}
	return &verify.Pipeline{Rules: engine}
}

func awaitMessage(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	pipeline := newPipeline(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}, WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected global and tenant subscriptions, got %+v", stats)
		}
		for _, topic := range stats.Topics {
			if topic != domain.TopicVerificationRequested {
				t.Errorf("unexpected topic %s", topic)
			}
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("ProcessVerification", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		completed := make(chan *domain.Message, 1)
		eventBus.Subscribe(ctx, "tenant-test", domain.TopicVerificationCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg
			return nil
		})
		var rejected atomic.Int32
		eventBus.Subscribe(ctx, "tenant-test", domain.TopicVerificationRejected, func(ctx context.Context, msg *domain.Message) error {
			rejected.Add(1)
			return nil
		})

		payload, _ := json.Marshal(VerificationMessage{VerificationRequest: domain.VerificationRequest{
			ProductID:  "PRD-001",
			SupplierID: "SUP-001",
			TraceID:    "trace-001",
			Transaction: domain.TransactionAttributes{
				DocumentationCompleteness: 95,
			},
		}})
		if err := eventBus.Publish(ctx, "tenant-test", domain.TopicVerificationRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		msg := awaitMessage(t, completed)
		var v domain.Verification
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			t.Fatalf("failed to parse verification: %v", err)
		}
		if v.ProductID != "PRD-001" || v.TenantID != "tenant-test" {
			t.Errorf("unexpected verification: %+v", v)
		}
		if v.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", v.Metadata.TraceID)
		}
		// Constant fallback model sends the request to review.
		if v.Status != domain.StatusReview {
			t.Errorf("status = %s, want REVIEW", v.Status)
		}
		time.Sleep(20 * time.Millisecond)
		if rejected.Load() != 0 {
			t.Error("review must not publish a rejection")
		}
	})

	t.Run("RejectionPublished", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{TenantIDs: []string{"tenant-reject"}})
		defer w.Stop()

		rejected := make(chan *domain.Message, 1)
		eventBus.Subscribe(ctx, "tenant-reject", domain.TopicVerificationRejected, func(ctx context.Context, msg *domain.Message) error {
			rejected <- msg
			return nil
		})

		// Missing documentation fails documentation-001.
		payload, _ := json.Marshal(VerificationMessage{VerificationRequest: domain.VerificationRequest{
			ProductID:  "PRD-006",
			SupplierID: "SUP-006",
		}})
		eventBus.Publish(ctx, "tenant-reject", domain.TopicVerificationRequested, payload)

		msg := awaitMessage(t, rejected)
		var v domain.Verification
		json.Unmarshal(msg.Payload, &v)
		if v.Status != domain.StatusRejected {
			t.Errorf("status = %s, want REJECTED", v.Status)
		}
	})

	t.Run("GlobalSubscription", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{})
		defer w.Stop()

		completed := make(chan *domain.Message, 1)
		eventBus.Subscribe(ctx, "tenant-x", domain.TopicVerificationCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg
			return nil
		})

		payload, _ := json.Marshal(VerificationMessage{
			TenantID:            "tenant-x",
			VerificationRequest: domain.VerificationRequest{ProductID: "P", SupplierID: "S"},
		})
		eventBus.Publish(ctx, GlobalTenant, domain.TopicVerificationRequested, payload)

		msg := awaitMessage(t, completed)
		if msg.TenantID != "tenant-x" {
			t.Errorf("published for tenant %s", msg.TenantID)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 3 {
			t.Errorf("expected global plus 2 tenant subscriptions, got %d", got)
		}
	})

	t.Run("DuplicateTenantsSubscribeOnce", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{TenantIDs: []string{"tenant-a", GlobalTenant, "tenant-a"}})
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions, got %d", got)
		}
	})

	t.Run("GlobalServedWithTenantList", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)
		w.Start(Config{TenantIDs: []string{"tenant-dedicated"}})
		defer w.Stop()

		completed := make(chan *domain.Message, 1)
		eventBus.Subscribe(ctx, "tenant-other", domain.TopicVerificationCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg
			return nil
		})

		payload, _ := json.Marshal(VerificationMessage{
			TenantID:            "tenant-other",
			VerificationRequest: domain.VerificationRequest{ProductID: "P", SupplierID: "S"},
		})
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if _, err := eventBus.Request(reqCtx, GlobalTenant, domain.TopicVerificationRequested, payload); err != nil {
			t.Fatalf("expected the worker to accept the request: %v", err)
		}

		msg := awaitMessage(t, completed)
		if msg.TenantID != "tenant-other" {
			t.Errorf("published for tenant %s", msg.TenantID)
		}
	})
}

// blockingRunner records peak concurrency.
type blockingRunner struct {
	mu      sync.Mutex
	current int
	peak    int
	done    sync.WaitGroup
}

func (r *blockingRunner) Run(ctx context.Context, tenantID string, req *domain.VerificationRequest) (*domain.Verification, error) {
	defer r.done.Done()
	r.mu.Lock()
	r.current++
	r.peak = max(r.peak, r.current)
	r.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.current--
	r.mu.Unlock()
	return &domain.Verification{ID: req.ProductID, TenantID: tenantID, Status: domain.StatusVerified}, nil
}

func TestWorkerConcurrencyLimit(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	runner := &blockingRunner{}
	w := NewWorker(eventBus, runner)
	if err := w.Start(Config{TenantIDs: []string{"t1"}, WorkerCount: 2}); err != nil {
		t.Fatal(err)
	}

	const n = 8
	runner.done.Add(n)
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(VerificationMessage{VerificationRequest: domain.VerificationRequest{ProductID: "P", SupplierID: "S"}})
		eventBus.Publish(context.Background(), "t1", domain.TopicVerificationRequested, payload)
	}

	finished := make(chan struct{})
	go func() {
		runner.done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for verifications")
	}
	w.Stop()

	if runner.peak > 2 {
		t.Errorf("peak concurrency %d exceeds worker count 2", runner.peak)
	}
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, string, *domain.VerificationRequest) (*domain.Verification, error) {
	return nil, errors.New("boom")
}

func TestWorkerRunnerError(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	var published atomic.Int32
	eventBus.Subscribe(context.Background(), "t1", domain.TopicVerificationCompleted, func(ctx context.Context, msg *domain.Message) error {
		published.Add(1)
		return nil
	})

	w := NewWorker(eventBus, failingRunner{})
	w.Start(Config{TenantIDs: []string{"t1"}})

	eventBus.Publish(context.Background(), "t1", domain.TopicVerificationRequested, []byte(`{"productId":"P","supplierId":"S"}`))
	eventBus.Publish(context.Background(), "t1", domain.TopicVerificationRequested, []byte(`not json`))
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if published.Load() != 0 {
		t.Errorf("failed runs must not publish, got %d", published.Load())
	}
}

func TestVerificationMessageParsing(t *testing.T) {
	data := []byte(`{"tenantId":"t1","productId":"PRD-1","supplierId":"SUP-1","sector":"Luxury","transaction":{"amount":1234.56}}`)

	var msg VerificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.TenantID != "t1" || msg.ProductID != "PRD-1" || msg.Sector != "Luxury" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Transaction.Amount != 1234.56 {
		t.Errorf("expected amount 1234.56, got %v", msg.Transaction.Amount)
	}
}
