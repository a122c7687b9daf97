package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/quay/pkg/fingerprint"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/redis"
	"github.com/Ramsey-B/quay/pkg/utils"
)

// NotificationHandler accepts logistics notifications and enqueues them
type NotificationHandler struct {
	streams *redis.Streams
	stream  string
	logger  ectologger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(streams *redis.Streams, stream string, logger ectologger.Logger) *NotificationHandler {
	return &NotificationHandler{
		streams: streams,
		stream:  stream,
		logger:  logger,
	}
}

// NotificationRequest is the body for submitting a notification
type NotificationRequest struct {
	IdempotencyKey string                     `json:"idempotency_key,omitempty"`
	Payload        models.NotificationPayload `json:"payload"`
}

// NotificationResponse acknowledges an accepted notification
type NotificationResponse struct {
	MessageID string `json:"message_id"`
	StreamID  string `json:"stream_id"`
}

// Submit validates a notification and places it on the queue
// POST /api/v1/notifications
func (h *NotificationHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	request, err := utils.BindRequest[NotificationRequest](c)
	if err != nil {
		return err
	}

	if err := request.Payload.Normalize(); err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	payloadJSON, err := json.Marshal(request.Payload)
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	// Without a caller-supplied key, identical payloads dedupe against
	// each other via their content fingerprint.
	if request.IdempotencyKey == "" {
		key, err := fingerprint.GenerateFromJSON(payloadJSON)
		if err != nil {
			return httperror.WrapError(http.StatusInternalServerError, err)
		}
		request.IdempotencyKey = key
	}

	message := &models.QueueMessage{
		TenantID:       tenantID,
		IdempotencyKey: request.IdempotencyKey,
		Payload:        payloadJSON,
	}

	streamID, err := h.streams.Publish(ctx, h.stream, message)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue notification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue notification")
	}

	return c.JSON(http.StatusAccepted, NotificationResponse{
		MessageID: message.ID,
		StreamID:  streamID,
	})
}

// RegisterRoutes registers the notification routes
func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/notifications", h.Submit)
}
