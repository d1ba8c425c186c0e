package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sendloka/sendloka/internal/abuse"
	"github.com/sendloka/sendloka/internal/approval"
	"github.com/sendloka/sendloka/internal/guard"
	"github.com/sendloka/sendloka/internal/logging"
	"github.com/sendloka/sendloka/internal/metrics"
	"github.com/sendloka/sendloka/internal/ratelimit"
	"github.com/sendloka/sendloka/internal/subscription"
	"github.com/sendloka/sendloka/internal/validation"
	"github.com/sendloka/sendloka/internal/wallet"
	"github.com/sendloka/sendloka/internal/webhook"
)

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// registerTenant handles POST /v1/tenants.
// Creates the approval record (high-risk business types start pending)
// and a trial subscription so the tenant can try the product immediately.
func (s *Server) registerTenant(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		TenantID     string `json:"tenant_id" binding:"required"`
		BusinessType string `json:"business_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tenant_id and business_type are required",
		})
		return
	}

	req.TenantID = validation.SanitizeTenantID(req.TenantID)
	if !validation.IsValidTenantID(req.TenantID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tenant_id",
			"message": "tenant_id must be 3-64 lowercase alphanumeric characters, dashes or underscores",
		})
		return
	}

	rec, err := s.approvals.Register(ctx, req.TenantID, approval.BusinessType(req.BusinessType))
	if err != nil {
		if errors.Is(err, approval.ErrRecordExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "tenant_exists",
				"message": "A tenant with this id is already registered",
			})
			return
		}
		s.logger.Error("failed to register tenant", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register tenant",
		})
		return
	}

	snap, err := s.subPolicy.Subscribe(ctx, req.TenantID, subscription.PlanTrial, 14)
	if err != nil {
		s.logger.Error("failed to create trial subscription", "error", err, "tenant", req.TenantID)
		c.JSON(http.StatusCreated, gin.H{
			"approval": rec,
			"warning":  "Tenant registered but trial subscription creation failed",
		})
		return
	}

	s.logger.Info("tenant registered",
		"tenant", req.TenantID,
		"business_type", req.BusinessType,
		"approval_status", rec.Status,
	)

	c.JSON(http.StatusCreated, gin.H{
		"approval":     rec,
		"subscription": snap,
	})
}

// -----------------------------------------------------------------------------
// Admission
// -----------------------------------------------------------------------------

type admissionRequest struct {
	TenantID       string `json:"tenant_id" binding:"required"`
	Role           string `json:"role"`
	ActionType     string `json:"action_type" binding:"required"`
	BusinessType   string `json:"business_type"`
	MessageCount   int    `json:"message_count"`
	Category       string `json:"category"`
	CampaignCount  int    `json:"campaign_count"`
	RecipientCount int    `json:"recipient_count"`
	NumberCount    int    `json:"number_count"`
	Reference      string `json:"reference"`
}

// admissionHandler handles POST /v1/admission: the full revenue guard
// pipeline ending in an atomic wallet deduction on pass.
func (s *Server) admissionHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req admissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tenant_id and action_type are required",
		})
		return
	}

	req.TenantID = validation.SanitizeTenantID(req.TenantID)
	if verrs := validation.Validate(
		validation.ValidTenant("tenant_id", req.TenantID),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": verrs,
		})
		return
	}
	if req.Reference != "" && !validation.IsValidReference(req.Reference) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_reference",
			"message": "reference contains unsupported characters",
		})
		return
	}
	if req.MessageCount < 0 || req.CampaignCount < 0 || req.RecipientCount < 0 || req.NumberCount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "counts must be non-negative",
		})
		return
	}

	// Resolve the business type from the approval record when not supplied.
	// Only a missing record defaults to the lowest tier; a store fault
	// must not quietly hand out low-risk pricing.
	bt := approval.BusinessType(req.BusinessType)
	if bt == "" {
		rec, err := s.approvals.Get(ctx, req.TenantID)
		switch {
		case err == nil:
			bt = rec.BusinessType
		case errors.Is(err, approval.ErrRecordNotFound):
			bt = approval.BusinessOther
		default:
			logging.L(ctx).Error("approval lookup failed", "tenant_id", req.TenantID, "error", err)
			c.JSON(http.StatusForbidden, gin.H{
				"allowed": false,
				"reason":  "check_failed",
			})
			return
		}
	}

	ctx = logging.WithTenantID(ctx, req.TenantID)
	decision, err := s.pipeline.Admit(ctx, &guard.CheckContext{
		TenantID:       req.TenantID,
		Role:           parseRole(req.Role),
		ActionType:     req.ActionType,
		BusinessType:   bt,
		MessageCount:   req.MessageCount,
		Category:       req.Category,
		CampaignCount:  req.CampaignCount,
		RecipientCount: req.RecipientCount,
		NumberCount:    req.NumberCount,
		Reference:      req.Reference,
	})
	if err != nil {
		logging.L(ctx).Error("admission failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Admission check failed",
		})
		return
	}

	switch {
	case decision.Bypassed:
		metrics.AdmissionsTotal.WithLabelValues("bypassed", "").Inc()
	case decision.Allowed:
		metrics.AdmissionsTotal.WithLabelValues("allowed", "").Inc()
	default:
		metrics.AdmissionsTotal.WithLabelValues("denied", decision.Layer).Inc()
	}

	status := http.StatusOK
	if !decision.Allowed {
		// Payment-style denials map to 402, everything else to 403
		if decision.Reason == "insufficient_balance" || decision.Reason == "insufficient_balance_buffer" {
			status = http.StatusPaymentRequired
		} else {
			status = http.StatusForbidden
		}
	}
	c.JSON(status, decision)
}

func parseRole(role string) guard.Role {
	switch guard.Role(role) {
	case guard.RoleOwner, guard.RoleAdmin, guard.RoleStaff:
		return guard.Role(role)
	default:
		return guard.RoleTenant
	}
}

// -----------------------------------------------------------------------------
// Tenant state
// -----------------------------------------------------------------------------

// tenantStatusHandler handles GET /v1/tenants/:tenantId.
// Aggregate view: approval, abuse, subscription and saldo in one call.
func (s *Server) tenantStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	rec, err := s.approvals.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, approval.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "tenant_not_found",
				"message": "No tenant registered with this id",
			})
			return
		}
		s.logger.Error("failed to load approval record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	resp := gin.H{"tenantId": tenantID, "approval": rec}

	if score, err := s.abuseEngine.GetScore(ctx, tenantID); err == nil {
		resp["abuse"] = score
	}
	if sub, err := s.subPolicy.ValidateSubscription(ctx, tenantID); err == nil {
		resp["subscriptionOk"] = sub.Allowed
		resp["plan"] = sub.Plan
	}
	if balance, err := s.walletSvc.Balance(ctx, tenantID); err == nil {
		resp["balance"] = balance.Available
		resp["saldoStatus"] = s.walletSvc.StatusFor(balance.Available)
	}

	c.JSON(http.StatusOK, resp)
}

// abuseScoreHandler handles GET /v1/tenants/:tenantId/abuse.
// Tenants with no recorded events read as a clean zero score.
func (s *Server) abuseScoreHandler(c *gin.Context) {
	tenantID := c.Param("tenantId")
	score, err := s.abuseEngine.GetScore(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, abuse.ErrScoreNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"tenantId":     tenantID,
				"currentScore": 0,
				"abuseLevel":   abuse.LevelNone,
				"isSuspended":  false,
			})
			return
		}
		s.logger.Error("failed to load abuse score", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, score)
}

// abuseEventsHandler handles GET /v1/tenants/:tenantId/abuse/events
func (s *Server) abuseEventsHandler(c *gin.Context) {
	limit := queryLimit(c, 50)
	events, err := s.abuseEngine.History(c.Request.Context(), c.Param("tenantId"), limit)
	if err != nil {
		s.logger.Error("failed to load abuse events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// unlockHandler handles POST /v1/tenants/:tenantId/unlock.
// A suspended tenant may ask to be unlocked; the engine enforces both
// the cooldown and the score-improvement requirements.
func (s *Server) unlockHandler(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	result, err := s.abuseEngine.ProcessUnlock(ctx, tenantID)
	if err != nil {
		if errors.Is(err, abuse.ErrScoreNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		s.logger.Error("unlock failed", "error", err, "tenant", tenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	if result.Unlocked {
		metrics.SuspendedTenants.Dec()
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusConflict, result)
}

// balanceHandler handles GET /v1/tenants/:tenantId/balance
func (s *Server) balanceHandler(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	balance, err := s.walletSvc.Balance(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to load balance", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId":    tenantID,
		"available":   balance.Available,
		"totalIn":     balance.TotalIn,
		"totalOut":    balance.TotalOut,
		"saldoStatus": s.walletSvc.StatusFor(balance.Available),
		"currency":    "IDR",
	})
}

// ledgerHandler handles GET /v1/tenants/:tenantId/ledger
func (s *Server) ledgerHandler(c *gin.Context) {
	limit := queryLimit(c, 50)
	entries, err := s.walletSvc.History(c.Request.Context(), c.Param("tenantId"), limit)
	if err != nil {
		s.logger.Error("failed to load ledger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// subscriptionHandler handles GET /v1/tenants/:tenantId/subscription
func (s *Server) subscriptionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	result, err := s.subPolicy.ValidateSubscription(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to validate subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// guardLogHandler handles GET /v1/tenants/:tenantId/guard-log
func (s *Server) guardLogHandler(c *gin.Context) {
	limit := queryLimit(c, 50)
	entries, err := s.pipeline.History(c.Request.Context(), c.Param("tenantId"), limit)
	if err != nil {
		s.logger.Error("failed to load guard log", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// -----------------------------------------------------------------------------
// Inbound webhooks
// -----------------------------------------------------------------------------

// webhookHandler handles POST /api/webhooks/whatsapp.
// Verification order is fixed: IP allow-list, then HMAC signature, then
// the replay guard. Duplicates and stale events are acknowledged with
// 200 so the provider stops retrying, but are never processed.
func (s *Server) webhookHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	if !s.allowList.Allowed(c.ClientIP()) {
		metrics.WebhookRejectionsTotal.WithLabelValues("ip_not_allowed").Inc()
		logging.L(c.Request.Context()).Warn("webhook from disallowed IP", "ip", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	signature := c.GetHeader("X-Hub-Signature-256")
	if err := webhook.VerifySignature(body, signature, s.cfg.WebhookSecret); err != nil {
		cause := "bad_signature"
		if errors.Is(err, webhook.ErrMissingSignature) {
			cause = "missing_signature"
		}
		metrics.WebhookRejectionsTotal.WithLabelValues(cause).Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": cause})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookRejectionsTotal.WithLabelValues("invalid_json").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	result := s.replayGuard.Check(payload)
	if !result.OK {
		metrics.WebhookRejectionsTotal.WithLabelValues(result.Reason).Inc()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ignored",
			"reason":  result.Reason,
			"eventId": result.EventID,
		})
		return
	}

	resp := gin.H{"status": "accepted", "eventId": result.EventID}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Admin: approval workflow
// -----------------------------------------------------------------------------

func (s *Server) pendingApprovalsHandler(c *gin.Context) {
	limit := queryLimit(c, 50)
	records, err := s.approvals.PendingReview(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list pending approvals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": records, "count": len(records)})
}

func (s *Server) approvalStatusHandler(c *gin.Context) {
	rec, err := s.approvals.Get(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		if errors.Is(err, approval.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		s.logger.Error("failed to load approval record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) approvalLogHandler(c *gin.Context) {
	limit := queryLimit(c, 50)
	entries, err := s.approvals.AuditLog(c.Request.Context(), c.Param("tenantId"), limit)
	if err != nil {
		s.logger.Error("failed to load approval log", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

type approvalActionRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Notes   string `json:"notes"`
}

func (s *Server) approveHandler(c *gin.Context) {
	s.approvalAction(c, s.approvals.Approve)
}

func (s *Server) rejectHandler(c *gin.Context) {
	s.approvalAction(c, s.approvals.Reject)
}

func (s *Server) suspendApprovalHandler(c *gin.Context) {
	s.approvalAction(c, s.approvals.Suspend)
}

func (s *Server) approvalAction(c *gin.Context, fn func(ctx context.Context, tenantID, actorID, notes string) (*approval.Record, error)) {
	var req approvalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "actor_id is required",
		})
		return
	}

	rec, err := fn(c.Request.Context(), c.Param("tenantId"), req.ActorID, validation.SanitizeString(req.Notes, 2000))
	if err != nil {
		if errors.Is(err, approval.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		s.logger.Error("approval action failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// -----------------------------------------------------------------------------
// Admin: abuse controls
// -----------------------------------------------------------------------------

func (s *Server) recordAbuseEventHandler(c *gin.Context) {
	var req struct {
		EventType   string            `json:"event_type" binding:"required"`
		Context     map[string]string `json:"context"`
		Description string            `json:"description"`
		Source      string            `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "event_type is required",
		})
		return
	}

	score, err := s.abuseEngine.RecordEvent(c.Request.Context(), c.Param("tenantId"),
		req.EventType, req.Context, validation.SanitizeString(req.Description, 2000), req.Source)
	if err != nil {
		s.logger.Error("failed to record abuse event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	metrics.AbuseEventsTotal.WithLabelValues(req.EventType).Inc()
	c.JSON(http.StatusCreated, score)
}

func (s *Server) suspendTenantHandler(c *gin.Context) {
	var req struct {
		Type         string `json:"type"` // "temporary" or "permanent"
		CooldownDays int    `json:"cooldown_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	sType := abuse.SuspensionTemporary
	if req.Type == string(abuse.SuspensionPermanent) {
		sType = abuse.SuspensionPermanent
	}

	score, err := s.abuseEngine.Suspend(c.Request.Context(), c.Param("tenantId"), sType, req.CooldownDays)
	if err != nil {
		s.logger.Error("failed to suspend tenant", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	metrics.SuspendedTenants.Inc()
	c.JSON(http.StatusOK, score)
}

func (s *Server) resetAbuseHandler(c *gin.Context) {
	score, err := s.abuseEngine.Reset(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		s.logger.Error("failed to reset abuse score", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, score)
}

// -----------------------------------------------------------------------------
// Admin: wallet
// -----------------------------------------------------------------------------

type walletMutationRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Reference   string `json:"reference" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) topUpHandler(c *gin.Context) {
	s.walletMutation(c, s.walletSvc.TopUp)
}

func (s *Server) refundHandler(c *gin.Context) {
	s.walletMutation(c, s.walletSvc.Refund)
}

func (s *Server) walletMutation(c *gin.Context, fn func(ctx context.Context, tenantID, amount, reference, description string) error) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	var req walletMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount and reference are required",
		})
		return
	}

	if verrs := validation.Validate(
		validation.ValidAmount("amount", req.Amount),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
		return
	}
	if !validation.IsValidReference(req.Reference) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_reference",
			"message": "reference contains unsupported characters",
		})
		return
	}

	err := fn(ctx, tenantID, req.Amount, req.Reference, validation.SanitizeString(req.Description, 500))
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrDuplicateReference):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_reference",
				"message": "This reference has already been processed",
			})
		case errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		default:
			s.logger.Error("wallet mutation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	balance, err := s.walletSvc.Balance(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"available":   balance.Available,
		"saldoStatus": s.walletSvc.StatusFor(balance.Available),
	})
}

// -----------------------------------------------------------------------------
// Admin: subscriptions
// -----------------------------------------------------------------------------

func (s *Server) subscribeHandler(c *gin.Context) {
	var req struct {
		Plan       string `json:"plan" binding:"required"`
		PeriodDays int    `json:"period_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "plan is required",
		})
		return
	}

	plan := subscription.Plan(req.Plan)
	if !subscription.ValidPlan(plan) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_plan",
			"message": "plan must be one of: trial, basic, pro, enterprise",
		})
		return
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = 30
	}

	snap, err := s.subPolicy.Subscribe(c.Request.Context(), c.Param("tenantId"), plan, req.PeriodDays)
	if err != nil {
		s.logger.Error("failed to subscribe tenant", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// -----------------------------------------------------------------------------
// Admin: rate limit rules
// -----------------------------------------------------------------------------

func (s *Server) listRulesHandler(c *gin.Context) {
	rules, err := s.ruleStore.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (s *Server) putRuleHandler(c *gin.Context) {
	var rule ratelimit.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rule.ID = c.Param("ruleId")

	if err := s.ruleStore.Put(c.Request.Context(), &rule); err != nil {
		if errors.Is(err, ratelimit.ErrInvalidRule) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rule", "detail": err.Error()})
			return
		}
		s.logger.Error("failed to store rule", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRuleHandler(c *gin.Context) {
	if err := s.ruleStore.Delete(c.Request.Context(), c.Param("ruleId")); err != nil {
		if errors.Is(err, ratelimit.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule_not_found"})
			return
		}
		s.logger.Error("failed to delete rule", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// rateLimitStatsHandler handles GET /v1/admin/ratelimit/stats.
// Returns per-rule trigger counts over the requested window (default 24h).
func (s *Server) rateLimitStatsHandler(c *gin.Context) {
	hours := 24
	if h, err := strconv.Atoi(c.Query("hours")); err == nil && h > 0 {
		hours = h
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	counts, err := s.rlLogStore.CountByRule(c.Request.Context(), since)
	if err != nil {
		s.logger.Error("failed to load rate limit stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"since":    since.UTC().Format(time.RFC3339),
		"triggers": counts,
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func queryLimit(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}
