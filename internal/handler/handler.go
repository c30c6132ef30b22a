package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/activation"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/auth"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/config"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/scan"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

// DeviceStore is the slice of the record repository the transport layer
// needs for device registration.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
}

// Handler exposes the engine over HTTP/JSON.
type Handler struct {
	issuer    *activation.Issuer
	registry  *session.Registry
	validator *scan.Validator
	devices   DeviceStore
	cfg       config.App
	log       *zap.Logger
}

func New(issuer *activation.Issuer, registry *session.Registry, validator *scan.Validator, devices DeviceStore, cfg config.App, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{issuer: issuer, registry: registry, validator: validator, devices: devices, cfg: cfg, log: log}
}

// Register mounts all engine routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/devices/register", h.RegisterDevice)

	issuerGroup := r.Group("/v1", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, auth.RoleIssuer))
	issuerGroup.POST("/activation-codes", h.IssueActivationCode)
	issuerGroup.POST("/activation-codes/redeem", h.RedeemActivationCode)
	issuerGroup.POST("/sessions/:id/stop", h.StopSession)
	issuerGroup.POST("/sessions/:id/cancel", h.CancelSession)

	deviceGroup := r.Group("/v1", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, auth.RoleDevice))
	deviceGroup.POST("/scans", h.SubmitScan)

	// Read-only projections for display surfaces and dashboards.
	r.GET("/v1/sessions/:id", h.GetSessionStatus)
	r.GET("/v1/sessions/:id/token", h.GetCurrentToken)
}

// RegisterDevice records a scanner device and hands it transport tokens.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.devices.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := auth.Issue(req.DeviceID, auth.RoleDevice, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = h.devices.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp)

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// IssueActivationCode generates a single-use code for the calling issuer.
func (h *Handler) IssueActivationCode(c *gin.Context) {
	claims := claimsFrom(c)
	code, err := h.issuer.Issue(claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code.Code, "expires_at": code.ExpiresAt})
}

// RedeemActivationCode consumes a code and opens the session it gates.
func (h *Handler) RedeemActivationCode(c *gin.Context) {
	var req struct {
		Code     string `json:"code" binding:"required"`
		ClassRef string `json:"class_ref" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.issuer.Redeem(c.Request.Context(), req.Code, req.ClassRef)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID, "window_end": s.WindowEnd})
}

// GetCurrentToken is the read-only projection a display surface polls.
func (h *Handler) GetCurrentToken(c *gin.Context) {
	tok, err := h.registry.CurrentToken(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sequence":    tok.Sequence,
		"payload":     tok.Payload(),
		"valid_until": tok.ValidUntil,
	})
}

// StopSession completes a session; stopping twice is a no-op.
func (h *Handler) StopSession(c *gin.Context) {
	claims := claimsFrom(c)
	s, err := h.registry.Stop(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.ID, "status": s.Status})
}

// CancelSession is the administrative terminal transition.
func (h *Handler) CancelSession(c *gin.Context) {
	claims := claimsFrom(c)
	s, err := h.registry.Cancel(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.ID, "status": s.Status})
}

// SubmitScan runs one submission through the validation pipeline.
func (h *Handler) SubmitScan(c *gin.Context) {
	var ev scan.Evidence
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": scan.KindBadEvidence, "detail": err.Error()})
		return
	}
	rec, err := h.validator.Validate(c.Request.Context(), ev)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetSessionStatus reports the aggregate session projection.
func (h *Handler) GetSessionStatus(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":       s.ID,
		"status":           s.Status,
		"present_count":    s.PresentCount,
		"enrolled_count":   s.EnrolledCount,
		"current_sequence": s.CurrentSequence,
		"window_end":       s.WindowEnd,
	})
}

func claimsFrom(c *gin.Context) auth.Claims {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims
}

// writeError maps engine errors onto HTTP statuses with an explicit kind.
func (h *Handler) writeError(c *gin.Context, err error) {
	if kind := scan.KindOf(err); kind != "" {
		c.JSON(statusForKind(kind), gin.H{"error_kind": kind, "detail": err.Error()})
		return
	}
	switch {
	case errors.Is(err, activation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error_kind": "code_not_found", "detail": err.Error()})
	case errors.Is(err, activation.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error_kind": "code_expired", "detail": err.Error()})
	case errors.Is(err, activation.ErrAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error_kind": "code_already_used", "detail": err.Error()})
	case errors.Is(err, activation.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error_kind": "rate_limited", "detail": err.Error()})
	case errors.Is(err, session.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error_kind": "conflict", "detail": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error_kind": "session_not_found", "detail": err.Error()})
	case errors.Is(err, session.ErrTerminal):
		c.JSON(http.StatusConflict, gin.H{"error_kind": "session_terminal", "detail": err.Error()})
	case errors.Is(err, session.ErrNoToken):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error_kind": "no_token_yet", "detail": err.Error()})
	default:
		h.log.Error("unhandled engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error_kind": "internal", "detail": "internal error"})
	}
}

func statusForKind(kind scan.Kind) int {
	switch kind {
	case scan.KindBadEvidence:
		return http.StatusBadRequest
	case scan.KindSessionNotFound:
		return http.StatusNotFound
	case scan.KindSessionTerminal, scan.KindAlreadyRecorded:
		return http.StatusConflict
	case scan.KindTokenUnknown, scan.KindTokenExpired:
		return http.StatusGone
	case scan.KindSignatureMismatch:
		return http.StatusUnauthorized
	case scan.KindEvidenceRejected:
		return http.StatusUnprocessableEntity
	case scan.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
