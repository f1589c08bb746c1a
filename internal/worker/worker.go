// Package worker runs verification requests from the event bus asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/metrics"
	"github.com/chainflow-labs/chainflow/internal/verify"
)

// GlobalTenant is the bus tenant every worker consumes requests from.
// Messages on it must name their tenant in the payload.
const GlobalTenant = "_global"

// Runner executes one verification.
type Runner interface {
	Run(ctx context.Context, tenantID string, req *domain.VerificationRequest) (*domain.Verification, error)
}

// Worker consumes verification requests and publishes their outcome.
type Worker struct {
	bus    domain.EventBus
	runner Runner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs whose own request topic is consumed in addition to
	// GlobalTenant.
	TenantIDs []string

	// WorkerCount bounds concurrent verifications across all tenants.
	WorkerCount int
}

// NewWorker creates a worker that runs requests through runner.
func NewWorker(bus domain.EventBus, runner Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to verification requests on GlobalTenant and on each
// configured tenant.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	w.sem = make(chan struct{}, cfg.WorkerCount)

	tenants := []string{GlobalTenant}
	for _, id := range cfg.TenantIDs {
		if !slices.Contains(tenants, id) {
			tenants = append(tenants, id)
		}
	}

	var started int
	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicVerificationRequested, w.dispatch(tenantID))
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
		started++
	}
	if started == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"worker_count", cfg.WorkerCount,
	)
	return nil
}

// dispatch hands each message to a goroutine once a worker slot is free.
func (w *Worker) dispatch(tenantID string) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		select {
		case w.sem <- struct{}{}:
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
		if w.ctx.Err() != nil {
			<-w.sem
			return w.ctx.Err()
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			// In-flight verifications finish even when the worker stops.
			if err := w.process(context.WithoutCancel(w.ctx), tenantID, msg); err != nil {
				slog.Error("verification failed",
					"message_id", msg.ID,
					"tenant_id", tenantID,
					"error", err,
				)
			}
		}()
		return nil
	}
}

// VerificationMessage is the payload of a verification request event.
type VerificationMessage struct {
	TenantID string `json:"tenantId,omitempty"`
	domain.VerificationRequest
}

func (w *Worker) process(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req VerificationMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("failed to parse verification message: %w", err)
	}

	if req.TenantID != "" {
		tenantID = req.TenantID
	} else if tenantID == GlobalTenant {
		tenantID = msg.TenantID
	}
	if req.TraceID == "" {
		req.TraceID = msg.ID
	}

	slog.Debug("processing verification",
		"product_id", req.ProductID,
		"tenant_id", tenantID,
		"trace_id", req.TraceID,
	)

	v, err := w.runner.Run(ctx, tenantID, &req.VerificationRequest)
	if err != nil && v == nil {
		return err
	}
	if err != nil {
		// The decision exists but was not persisted; still publish it.
		slog.Error("failed to persist verification",
			"verification_id", v.ID,
			"error", err,
		)
	}

	metrics.Verified(v)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal verification: %w", err)
	}
	if err := w.bus.Publish(ctx, tenantID, domain.TopicVerificationCompleted, payload); err != nil {
		slog.Error("failed to publish verification",
			"verification_id", v.ID,
			"error", err,
		)
	}
	if verify.IsRejected(v) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicVerificationRejected, payload); err != nil {
			slog.Error("failed to publish rejection",
				"verification_id", v.ID,
				"error", err,
			)
		}
	}

	slog.Info("verification processed",
		"verification_id", v.ID,
		"product_id", v.ProductID,
		"tenant_id", tenantID,
		"status", v.Status,
		"score", v.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight verifications.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
