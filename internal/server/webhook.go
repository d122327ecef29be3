package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
)

const (
	eventKeyHeader  = "X-Event-Key"
	requestIDHeader = "X-Request-Id"

	// maxWebhookBody caps the accepted payload size
	maxWebhookBody = 5 << 20
)

// handleWebhook accepts a host webhook delivery. The chain runs inline; Jenkins
// is only ever called from the worker pool.
func (srv *Server) handleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	if err := srv.security.Allow(c.ClientIP()); err != nil {
		srv.log.Warn("Rejected webhook: %v", err)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		srv.log.Error("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := srv.security.ValidateSignature(body, c.GetHeader(SignatureHeader)); err != nil {
		srv.log.Warn("Webhook signature check failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	delivery := c.GetHeader(requestIDHeader)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	log := srv.log.With("delivery", delivery)

	ev, err := events.Decode(c.GetHeader(eventKeyHeader), body)
	if err != nil {
		log.Warn("Failed to decode webhook: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "delivery": delivery})
		return
	}

	if ev.Kind == events.KindUnknown {
		log.Debug("Ignoring webhook with event key %q", c.GetHeader(eventKeyHeader))
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored", "delivery": delivery})
		return
	}

	dispatched, err := srv.events.Handle(permission.With(ctx, permission.RepoRead, "webhook"), ev)
	if err != nil {
		log.Error("Failed to handle %s event for %s: %v", ev.Kind, ev.Repository.Key(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "delivery": delivery})
		return
	}

	log.Info("Accepted %s event for %s, %d notification(s) scheduled", ev.Kind, ev.Repository.Key(), dispatched)
	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"delivery":   delivery,
		"dispatched": dispatched,
	})
}
