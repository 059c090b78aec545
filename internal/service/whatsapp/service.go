package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/config"
	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/service/commands"
	client "github.com/mamadbah2/pantry/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// ErrNoRecipient is returned by Notify when no manager number is configured.
var ErrNoRecipient = errors.New("no notification recipient configured")

// MessagingService is what the webhook HTTP handler calls.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService turns kitchen chat messages into ledger commands and
// sends the replies through the Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	client     client.Client
	dispatcher commands.Dispatcher
	logger     *zap.Logger
}

func NewMetaWhatsAppService(cfg config.WhatsAppConfig, api client.Client, dispatcher commands.Dispatcher, logger *zap.Logger) *MetaWhatsAppService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetaWhatsAppService{cfg: cfg, client: api, dispatcher: dispatcher, logger: logger}
}

// VerifyWebhookToken answers Meta's subscription handshake with the
// challenge when the token matches META_VERIFY_TOKEN.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	switch {
	case mode == "" || verifyToken == "":
		return "", errors.New("missing hub.mode or hub.verify_token")
	case !strings.EqualFold(mode, "subscribe"):
		return "", fmt.Errorf("unsupported hub.mode %q", mode)
	case verifyToken != s.cfg.VerifyToken:
		return "", errors.New("verify token mismatch")
	}
	return challenge, nil
}

// HandleWebhook runs every command message in the payload. A failing
// message does not stop the others; the first error is returned.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				err := s.runCommand(ctx, msg)
				if err == nil {
					continue
				}
				s.logger.Error("failed to reply to kitchen command", zap.String("message_id", msg.ID), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (s *MetaWhatsAppService) runCommand(ctx context.Context, msg models.InboundMessage) error {
	text := msg.CommandText()
	if text == "" {
		s.logger.Debug("ignoring message without text", zap.String("message_id", msg.ID), zap.String("type", msg.Type))
		return nil
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", msg.From),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	reply, err := s.dispatcher.HandleCommand(ctx, cmd, msg.From)
	switch {
	case errors.Is(err, commands.ErrInvalidArguments):
		reply = fmt.Sprintf("Could not read /%s arguments.\n%s", cmd.Type, commands.HelpText)
	case errors.Is(err, commands.ErrUnsupportedCommand):
		reply = commands.HelpText
	case err != nil:
		s.logger.Error("command failed", zap.String("command", string(cmd.Type)), zap.Error(err))
		reply = commands.DescribeError(err)
	}

	return s.send(ctx, msg.From, reply, false)
}

// SendOutbound pushes an operator message to one kitchen contact.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	return s.send(ctx, req.To, req.Message, req.PreviewURL)
}

// Notify sends message to the configured kitchen manager.
func (s *MetaWhatsAppService) Notify(ctx context.Context, message string) error {
	if s.cfg.ManagerID == "" {
		return ErrNoRecipient
	}
	return s.send(ctx, s.cfg.ManagerID, message, false)
}

func (s *MetaWhatsAppService) send(ctx context.Context, to, body string, previewURL bool) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.client.SendTextMessage(ctx, client.SendTextMessageRequest{To: to, Body: body, PreviewURL: previewURL})
	return err
}
