package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/repository"
	"github.com/go-chi/chi/v5"
)

// GlobalTenantID is used for rules and profiles that apply to all tenants.
const GlobalTenantID = "*"

// Tolerance allowed when checking that profile weights sum to 1.
const weightSumTolerance = 0.01

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description,omitempty"`
	Sector      string            `json:"sector,omitempty"`
	Expression  string            `json:"expression" validate:"required"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight" validate:"min=0"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule compiles a new rule and saves it to the database under the
// global tenant. Call POST /rules/reload to apply it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	var req CreateRuleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Sector:      req.Sector,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// A rule that fails to compile leaves the loaded set unchanged.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	dbRules, err := h.repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// ============================================================================
// SECTOR PROFILES
// ============================================================================

// ProfileRequest is the request body for creating or updating a profile.
type ProfileRequest struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name" validate:"required"`
	Sector         string                     `json:"sector"`
	Description    string                     `json:"description,omitempty"`
	Rules          []domain.ProfileRuleWeight `json:"rules" validate:"required,min=1,dive"`
	AlertThreshold float64                    `json:"alertThreshold"`
	Enabled        bool                       `json:"enabled"`
}

// ListProfiles returns the loaded sector profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.profiles.GetLoadedProfiles()
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
		"source":   "database",
	})
}

// GetProfile retrieves a loaded profile by ID.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "id")
	for _, p := range h.profiles.GetLoadedProfiles() {
		if p.ID == profileID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "profile not found")
}

// CreateProfile validates and saves a new sector profile.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	var req ProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	profile, ok := h.buildProfile(w, req.ID, req)
	if !ok {
		return
	}
	if !h.saveProfile(w, r, profile) {
		return
	}

	slog.Info("profile created", "id", profile.ID, "sector", profile.Sector)
	writeJSON(w, http.StatusCreated, map[string]any{
		"profile": profile,
		"message": "Profile created. Call POST /profiles/reload to apply changes.",
	})
}

// UpdateProfile replaces an existing profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	existing, err := h.repo.GetProfile(ctx, GlobalTenantID, profileID)
	if err != nil {
		h.writeRecord(w, "profile", nil, err)
		return
	}

	var req ProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	profile, ok := h.buildProfile(w, profileID, req)
	if !ok {
		return
	}
	profile.Version = existing.Version
	profile.CreatedAt = existing.CreatedAt
	if !h.saveProfile(w, r, profile) {
		return
	}

	slog.Info("profile updated", "id", profileID)
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"message": "Profile updated. Call POST /profiles/reload to apply changes.",
	})
}

// DeleteProfile disables a profile and reloads the profile engine.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	if err := h.repo.DeleteProfile(ctx, GlobalTenantID, profileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		slog.Error("failed to delete profile", "id", profileID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}

	count, err := h.loadProfiles(r)
	if err != nil {
		slog.Error("failed to reload profiles after delete", "error", err)
	} else {
		slog.Info("profiles auto-reloaded after delete", "count", count)
	}

	slog.Info("profile deleted", "id", profileID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile deleted and engine reloaded.",
	})
}

// ReloadProfiles reloads all profiles from the database into the engine.
func (h *Handler) ReloadProfiles(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	count, err := h.loadProfiles(r)
	if err != nil {
		slog.Error("failed to list profiles from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profiles from database")
		return
	}

	slog.Info("profiles reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "profiles reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) loadProfiles(r *http.Request) (int, error) {
	profiles, err := h.repo.ListProfiles(r.Context(), GlobalTenantID)
	if err != nil {
		return 0, err
	}
	h.profiles.LoadProfiles(profiles)
	return h.profiles.ProfileCount(), nil
}

// buildProfile checks rule references, weights and threshold.
func (h *Handler) buildProfile(w http.ResponseWriter, id string, req ProfileRequest) (*domain.SectorProfile, bool) {
	loaded := make(map[string]bool)
	for _, rule := range h.engine.GetLoadedRules() {
		loaded[rule.ID] = true
	}

	var total float64
	for _, rw := range req.Rules {
		if rw.RuleID == "" {
			writeError(w, http.StatusBadRequest, "ruleId cannot be empty")
			return nil, false
		}
		if !loaded[rw.RuleID] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("ruleId '%s' does not exist in rule engine", rw.RuleID))
			return nil, false
		}
		if rw.Weight < 0 || rw.Weight > 1 {
			writeError(w, http.StatusBadRequest, "rule weight must be between 0 and 1")
			return nil, false
		}
		total += rw.Weight
	}
	if total < 1-weightSumTolerance || total > 1+weightSumTolerance {
		slog.Warn("profile weights do not sum to 1.0",
			"profile_id", id,
			"total_weight", total,
		)
	}

	// A zero threshold would never trigger.
	if req.AlertThreshold <= 0 || req.AlertThreshold > 1 {
		writeError(w, http.StatusBadRequest, "alertThreshold must be between 0 (exclusive) and 1")
		return nil, false
	}

	now := time.Now().UTC()
	return &domain.SectorProfile{
		ID:             id,
		TenantID:       GlobalTenantID,
		Name:           req.Name,
		Sector:         req.Sector,
		Description:    req.Description,
		Version:        "1.0.0",
		Rules:          req.Rules,
		AlertThreshold: req.AlertThreshold,
		Enabled:        req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, true
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request, p *domain.SectorProfile) bool {
	if err := h.repo.SaveProfile(r.Context(), GlobalTenantID, p); err != nil {
		slog.Error("failed to save profile", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return false
	}
	return true
}
