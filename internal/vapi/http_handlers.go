package vapi

import (
	"errors"
	"io"
	"net/http"

	"intake-platform/internal/auth"
	"intake-platform/internal/projects"
	"intake-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the ingestion endpoints over HTTP.
// Keep these thin: parse/verify input, call the service, map errors.
type Handlers struct {
	Ingest *Service

	// WebhookSecret enables signature verification when set.
	WebhookSecret string
}

const maxWebhookBody = 1 << 20 // 1 MiB

// HandleWebhook serves POST /api/vapi/webhook. The body is either a vendor
// event (has a type discriminator) or a client-initiated save request; both
// paths converge on the same ingestion service.
func (h Handlers) HandleWebhook(c *gin.Context) {
	if h.Ingest == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingestion not configured"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := VerifySignature(h.WebhookSecret, raw, c.GetHeader(SignatureHeader)); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ev, saveReq, isEvent, err := ParseWebhookBody(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	if isEvent {
		if err := h.Ingest.HandleWebhookEvent(ctx, ev); err != nil {
			h.abortWithIngestError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result, err := h.Ingest.SaveFromClient(ctx, saveReq)
	if err != nil {
		h.abortWithIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"call_id":          result.CallID,
		"transcript":       result.Transcript,
		"duration_seconds": result.DurationSeconds,
	})
}

type initiateCallRequest struct {
	ProjectID string `json:"projectId"`
}

// HandleInitiateCall serves POST /api/vapi/initiate-call (authenticated).
func (h Handlers) HandleInitiateCall(c *gin.Context) {
	if h.Ingest == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingestion not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ProjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "projectId required"})
		return
	}

	callID, err := h.Ingest.InitiateCall(c.Request.Context(), userID, req.ProjectID)
	if err != nil {
		h.abortWithIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "callId": callID})
}

// abortWithIngestError maps service errors onto the response taxonomy:
// configuration errors are 5xx with a descriptive message, correlation
// failures are not-found, vendor failures are bad-gateway.
func (h Handlers) abortWithIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callId or callStartTimestamp plus projectId and userId required"})
	case errors.Is(err, ErrNoMatch), errors.Is(err, ErrCallNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no matching call found"})
	case errors.Is(err, projects.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case errors.Is(err, ErrTooManyCalls):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "project call limit reached"})
	case errors.Is(err, ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voice vendor API key is not configured"})
	default:
		var vendorErr *VendorError
		if errors.As(err, &vendorErr) {
			logger.FromGin(c).Error("vendor call failed", "status", vendorErr.StatusCode)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "voice vendor request failed"})
			return
		}
		logger.FromGin(c).Error("ingestion failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript ingestion failed"})
	}
}
