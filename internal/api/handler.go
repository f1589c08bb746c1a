package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/metrics"
	"github.com/chainflow-labs/chainflow/internal/repository"
	"github.com/chainflow-labs/chainflow/internal/routing"
	"github.com/chainflow-labs/chainflow/internal/rules"
	"github.com/chainflow-labs/chainflow/internal/scoring"
	"github.com/chainflow-labs/chainflow/internal/tracking"
	"github.com/chainflow-labs/chainflow/internal/verify"
	"github.com/chainflow-labs/chainflow/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Default and maximum page size for GET /routes.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Deps are the services the API handlers call. Repo, Cache and Bus may be nil;
// endpoints that need them answer 503.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Optimizer *routing.Optimizer
	Scorer    *scoring.Scorer
	Shipments *tracking.Store
	Rules     *rules.Engine
	Profiles  *rules.ProfileEngine
	Pipeline  *verify.Pipeline
	Version   string

	// EnqueueTimeout bounds the wait for a worker to accept an async
	// verification. Defaults to 5s.
	EnqueueTimeout time.Duration
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	optimizer *routing.Optimizer
	scorer    *scoring.Scorer
	shipments *tracking.Store
	engine    *rules.Engine
	profiles  *rules.ProfileEngine
	pipeline  *verify.Pipeline
	version   string

	enqueueTimeout time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		optimizer: deps.Optimizer,
		scorer:    deps.Scorer,
		shipments: deps.Shipments,
		engine:    deps.Rules,
		profiles:  deps.Profiles,
		pipeline:  deps.Pipeline,
		version:   deps.Version,

		enqueueTimeout: deps.EnqueueTimeout,
	}
	if h.enqueueTimeout <= 0 {
		h.enqueueTimeout = 5 * time.Second
	}
	if h.scorer == nil {
		h.scorer = scoring.NewScorer(nil)
	}
	if h.profiles == nil {
		h.profiles = rules.NewProfileEngine()
	}
	return h
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			checks[name] = "down"
			status = "degraded"
			return
		}
		checks[name] = "up"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventbus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"version":       h.version,
		"checks":        checks,
		"fraudModel":    h.scorer.Model().Name(),
		"fraudDegraded": h.scorer.Degraded(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ============================================================================
// ROUTING
// ============================================================================

// OptimizeRoute handles POST /routes/optimize.
func (h *Handler) OptimizeRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.RouteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	route := h.optimizer.OptimizeRoute(ctx, req)
	route.TenantID = tenantID
	metrics.RouteOptimized(route)

	if h.repo != nil {
		if err := h.repo.SaveRoute(ctx, tenantID, route); err != nil {
			slog.Error("failed to save route", "route_id", route.ID, "error", err)
		}
	}
	h.publish(r, domain.TopicRouteOptimized, route)

	writeJSON(w, http.StatusOK, route)
}

// ListRoutes handles GET /routes?limit=n.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	routes, err := h.repo.ListRoutes(ctx, GetTenantID(ctx), limit)
	if err != nil {
		slog.Error("failed to list routes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list routes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

// GetRoute handles GET /routes/{id}.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}
	route, err := h.repo.GetRoute(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	h.writeRecord(w, "route", route, err)
}

// Regions handles GET /regions.
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"regions":       routing.Regions(),
		"hubs":          routing.Hubs(),
		"defaultRegion": domain.DefaultRegion,
	})
}

// ClassifyRegion handles GET /regions/classify?country=.
func (h *Handler) ClassifyRegion(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		writeError(w, http.StatusBadRequest, "country query parameter is required")
		return
	}

	region, known := routing.ClassifyRegion(country)
	writeJSON(w, http.StatusOK, map[string]any{
		"country": country,
		"region":  region,
		"known":   known,
	})
}

// ============================================================================
// SCORING
// ============================================================================

// TrustRequest is the request body for POST /suppliers/trust.
type TrustRequest struct {
	SupplierID string                    `json:"supplierId" validate:"required"`
	Attributes domain.SupplierAttributes `json:"attributes"`
}

// AssessTrust handles POST /suppliers/trust.
func (h *Handler) AssessTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req TrustRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	assessment := h.scorer.AssessTrust(req.SupplierID, req.Attributes)
	assessment.TenantID = tenantID
	metrics.TrustAssessed(assessment)

	if h.repo != nil {
		if err := h.repo.SaveTrustAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save trust assessment", "id", assessment.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetTrust handles GET /trust/{id}.
func (h *Handler) GetTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}
	a, err := h.repo.GetTrustAssessment(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	h.writeRecord(w, "trust assessment", a, err)
}

// AssessFraud handles POST /fraud/assess.
func (h *Handler) AssessFraud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var attrs domain.TransactionAttributes
	if !decodeAndValidate(w, r, &attrs) {
		return
	}

	assessment := h.scorer.FraudRisk(ctx, attrs)
	assessment.TenantID = tenantID
	metrics.FraudAssessed(assessment)

	if h.repo != nil {
		if err := h.repo.SaveFraudAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save fraud assessment", "id", assessment.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetFraud handles GET /fraud/{id}.
func (h *Handler) GetFraud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}
	a, err := h.repo.GetFraudAssessment(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	h.writeRecord(w, "fraud assessment", a, err)
}

// FraudModel handles GET /fraud/model.
func (h *Handler) FraudModel(w http.ResponseWriter, r *http.Request) {
	model := h.scorer.Model()
	writeJSON(w, http.StatusOK, map[string]any{
		"model":    model.Name(),
		"trained":  model.Trained(),
		"accuracy": model.Accuracy(),
		"degraded": h.scorer.Degraded(),
		"features": domain.FeatureNames,
	})
}

// ============================================================================
// VERIFICATION
// ============================================================================

// Verify handles POST /verify. With ?async=true the request is handed to a
// worker over the event bus and answered with 202, or 503 when no worker
// takes it within the enqueue timeout.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.VerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.TraceID == "" {
		req.TraceID = GetTraceID(ctx)
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueueVerification(w, r, tenantID, &req)
		return
	}

	if h.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "verification pipeline not available")
		return
	}

	v, err := h.pipeline.Run(ctx, tenantID, &req)
	if err != nil && v == nil {
		if errors.Is(err, verify.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("verification failed", "product_id", req.ProductID, "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if err != nil {
		slog.Error("failed to persist verification", "verification_id", v.ID, "error", err)
	}

	metrics.Verified(v)
	h.publish(r, domain.TopicVerificationCompleted, v)
	if verify.IsRejected(v) {
		h.publish(r, domain.TopicVerificationRejected, v)
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) enqueueVerification(w http.ResponseWriter, r *http.Request, tenantID string, req *domain.VerificationRequest) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	payload, err := json.Marshal(worker.VerificationMessage{
		TenantID:            tenantID,
		VerificationRequest: *req,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode request")
		return
	}

	// Requests go to the global topic with the tenant in the payload, which
	// every worker consumes whatever its tenant list. The bus acknowledges
	// once a worker has taken the request.
	ctx, cancel := context.WithTimeout(r.Context(), h.enqueueTimeout)
	defer cancel()
	if _, err := h.bus.Request(ctx, worker.GlobalTenant, domain.TopicVerificationRequested, payload); err != nil {
		slog.Error("no worker accepted verification",
			"product_id", req.ProductID,
			"tenant_id", tenantID,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, "no verification worker accepted the request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"productId": req.ProductID,
		"traceId":   req.TraceID,
	})
}

// GetVerification handles GET /verifications/{id}.
func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}
	v, err := h.repo.GetVerification(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	h.writeRecord(w, "verification", v, err)
}

// ============================================================================
// SHIPMENTS
// ============================================================================

// AdvanceRequest is the optional body of POST /shipments/{id}/advance.
// A zero step advances by a random amount.
type AdvanceRequest struct {
	Step int `json:"step" validate:"min=0,max=100"`
}

// CreateShipment handles POST /shipments.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var in tracking.CreateShipmentInput
	if !decodeAndValidate(w, r, &in) {
		return
	}

	sh, route, err := h.shipments.Create(ctx, tenantID, in)
	if err != nil {
		if errors.Is(err, tracking.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to create shipment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create shipment")
		return
	}

	metrics.RouteOptimized(route)
	if h.repo != nil {
		if err := h.repo.SaveRoute(ctx, tenantID, route); err != nil {
			slog.Error("failed to save shipment route", "route_id", route.ID, "error", err)
		}
	}
	h.publish(r, domain.TopicShipmentUpdated, sh)

	slog.Info("shipment created", "shipment_id", sh.ID, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"shipment": sh,
		"route":    route,
	})
}

// ListShipments handles GET /shipments.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.shipments.List(ctx, GetTenantID(ctx))
	if err != nil {
		slog.Error("failed to list shipments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list shipments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shipments": list,
		"count":     len(list),
	})
}

// GetShipment handles GET /shipments/{id}.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh, err := h.shipments.Get(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeShipmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// AdvanceShipment handles POST /shipments/{id}/advance.
func (h *Handler) AdvanceShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	sh, err := h.shipments.Advance(ctx, tenantID, chi.URLParam(r, "id"), req.Step)
	if err != nil {
		h.writeShipmentError(w, err)
		return
	}
	h.publish(r, domain.TopicShipmentUpdated, sh)

	writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) writeShipmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrShipmentNotFound):
		writeError(w, http.StatusNotFound, "shipment not found")
	case errors.Is(err, tracking.ErrAlreadyDelivered):
		writeError(w, http.StatusConflict, "shipment already delivered")
	default:
		slog.Error("shipment store error", "error", err)
		writeError(w, http.StatusInternalServerError, "shipment store error")
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// publish emits an event when a bus is configured. Failures are logged only.
func (h *Handler) publish(r *http.Request, topic string, v any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(r.Context(), GetTenantID(r.Context()), topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

// writeRecord answers a repository lookup: 404 for ErrNotFound, 500 otherwise.
func (h *Handler) writeRecord(w http.ResponseWriter, what string, record any, err error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, what+" not found")
			return
		}
		slog.Error("failed to load record", "record", what, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load "+what)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
