package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	service "github.com/mamadbah2/pantry/internal/service/whatsapp"
)

// WebhookHandler is the HTTP face of the kitchen chat: Meta's verification
// handshake, inbound command messages and operator pushes.
type WebhookHandler struct {
	chat   service.MessagingService
	logger *zap.Logger
}

func NewWebhookHandler(chat service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{chat: chat, logger: logger}
}

// Verify handles GET /webhook.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	challenge, err := h.chat.VerifyWebhookToken(mode, c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if err != nil {
		h.logger.Warn("webhook handshake refused", zap.String("mode", mode), zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive handles POST /webhook. Once the body parses the answer is 200 no
// matter how the commands went: Meta redelivers on any other status, and a
// redelivered /issue or /cook would deduct stock twice. Command failures are
// reported to the sender in chat and logged here.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("unreadable webhook body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "invalid payload"})
		return
	}

	if err := h.chat.HandleWebhook(c.Request.Context(), payload); err != nil {
		h.logger.Error("webhook processed with errors",
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Error(err))
	}
	c.Status(http.StatusOK)
}

// SendMessage handles POST /send-message.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "to and message are required"})
		return
	}

	if err := h.chat.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("operator message not delivered", zap.String("to", req.To), zap.Error(err))
		abortWithError(c, http.StatusBadGateway, ErrorResponse{Code: CodeServiceUnavailable, Message: "message could not be delivered", Retryable: true})
		return
	}
	c.Status(http.StatusAccepted)
}
