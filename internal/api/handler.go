package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"apples-watch/internal/alerting"
	"apples-watch/internal/alertstore"
)

// DefaultHistoryLimit caps /v1/history when no limit is given.
const DefaultHistoryLimit = 200

// RuleStore is the rule management surface the handlers need.
type RuleStore interface {
	CreateRule(ctx context.Context, rule alerting.Rule) (alerting.Rule, error)
	UpdateRule(ctx context.Context, rule alerting.Rule) (alerting.Rule, error)
	GetRule(ctx context.Context, id int64) (alerting.Rule, error)
	ListRules(ctx context.Context) ([]alerting.Rule, error)
	SetActive(ctx context.Context, id int64, active bool) (alerting.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	ListEvents(ctx context.Context, ruleID int64, limit int) ([]alerting.Event, error)
}

var _ RuleStore = (*alertstore.Store)(nil)

type AlertHandler struct {
	store RuleStore
}

func NewAlertHandler(store RuleStore) *AlertHandler {
	return &AlertHandler{store: store}
}

type ruleRequest struct {
	Name       *string          `json:"name"`
	Threshold  *decimal.Decimal `json:"threshold"`
	TermMonths *int             `json:"term_months"`
	Recipient  *string          `json:"recipient"`
	Active     *bool            `json:"active"`
}

func (r ruleRequest) patch() alerting.RulePatch {
	return alerting.RulePatch{
		Name:       r.Name,
		Threshold:  r.Threshold,
		TermMonths: r.TermMonths,
		Recipient:  r.Recipient,
		Active:     r.Active,
	}
}

type ruleResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Threshold  string    `json:"threshold"`
	TermMonths *int      `json:"term_months"`
	Recipient  string    `json:"recipient"`
	Active     bool      `json:"active"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toRuleResponse(r alerting.Rule) ruleResponse {
	return ruleResponse{
		ID:         r.ID,
		Name:       r.Name,
		Threshold:  r.Threshold.String(),
		TermMonths: r.TermMonths,
		Recipient:  r.Recipient,
		Active:     r.Active,
		State:      string(r.State),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type eventResponse struct {
	ID            int64     `json:"id"`
	AlertID       int64     `json:"alert_id"`
	RuleName      string    `json:"rule_name"`
	SnapshotTS    time.Time `json:"snapshot_ts"`
	TriggeredAt   time.Time `json:"triggered_at"`
	SelectionType string    `json:"selection_type"`
	Supplier      string    `json:"supplier"`
	Price         string    `json:"price"`
	Threshold     string    `json:"threshold"`
	TermMonths    *int      `json:"term_months"`
	Message       string    `json:"message"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

func toEventResponse(e alerting.Event) eventResponse {
	return eventResponse{
		ID:            e.ID,
		AlertID:       e.RuleID,
		RuleName:      e.RuleName,
		SnapshotTS:    e.SnapshotTS,
		TriggeredAt:   e.TriggeredAt,
		SelectionType: string(e.SelectionType),
		Supplier:      e.Supplier,
		Price:         e.Price.String(),
		Threshold:     e.Threshold.String(),
		TermMonths:    e.TermMonths,
		Message:       e.Message,
		Status:        string(e.Status),
		Error:         e.Error,
	}
}

func (h *AlertHandler) List(c *gin.Context) {
	rules, err := h.store.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// Create stores a new rule. Rules are active unless the body says otherwise.
func (h *AlertHandler) Create(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TermMonths != nil && *req.TermMonths == 0 {
		req.TermMonths = nil
	}

	rule := req.patch().Apply(alerting.Rule{Active: true})
	created, err := h.store.CreateRule(c.Request.Context(), rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRuleResponse(created))
}

// Update applies the fields present in the body and re-arms the rule.
func (h *AlertHandler) Update(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.GetRule(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.store.UpdateRule(ctx, req.patch().Apply(current))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(updated))
}

func (h *AlertHandler) Toggle(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	current, err := h.store.GetRule(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	rule, err := h.store.SetActive(ctx, id, !current.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(rule))
}

func (h *AlertHandler) Delete(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History lists trigger events, optionally for one rule.
func (h *AlertHandler) History(c *gin.Context) {
	var alertID int64
	if raw := c.Query("alert_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "alert_id must be a positive integer"})
			return
		}
		alertID = v
	}

	limit := DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	events, err := h.store.ListEvents(c.Request.Context(), alertID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

func ruleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, alertstore.ErrRuleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, alerting.ErrInvalidRule) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
