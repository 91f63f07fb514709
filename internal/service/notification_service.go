package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/pkg/jobs"
)

const (
	jobTypeChatMessage  = "chat.message"
	jobTypeEventCreated = "event.created"
)

type chatMessagePayload struct {
	ChatID    string
	MessageID string
	AuthorID  string
}

type eventCreatedPayload struct {
	EventID   string
	CreatorID string
}

type notificationChatRepository interface {
	ListMembers(ctx context.Context, chatID string) ([]models.ChatMember, error)
}

type notificationEventRepository interface {
	ListRecipientIDs(ctx context.Context, creatorID string) ([]string, error)
}

// NotificationService fans notifications out on a background worker pool.
// Enqueueing is fire-and-forget: callers return as soon as the domain write
// is durable, and delivery failures are retried by the queue.
type NotificationService struct {
	queue  *jobs.Queue
	chats  notificationChatRepository
	events notificationEventRepository
	logger *zap.Logger
}

// NewNotificationService wires the queue with its job handler.
func NewNotificationService(chats notificationChatRepository, events notificationEventRepository, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{chats: chats, events: events, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// MessagePosted enqueues fanout for a freshly posted chat message.
func (s *NotificationService) MessagePosted(chatID, messageID, authorID string) {
	s.enqueue(jobTypeChatMessage, chatMessagePayload{ChatID: chatID, MessageID: messageID, AuthorID: authorID})
}

// EventCreated enqueues fanout for a newly announced event.
func (s *NotificationService) EventCreated(eventID, creatorID string) {
	s.enqueue(jobTypeEventCreated, eventCreatedPayload{EventID: eventID, CreatorID: creatorID})
}

func (s *NotificationService) enqueue(jobType string, payload interface{}) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", jobType), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeChatMessage:
		payload, ok := job.Payload.(chatMessagePayload)
		if !ok {
			return fmt.Errorf("unexpected payload for %s job", job.Type)
		}
		return s.fanOutMessage(ctx, payload)
	case jobTypeEventCreated:
		payload, ok := job.Payload.(eventCreatedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload for %s job", job.Type)
		}
		return s.fanOutEvent(ctx, payload)
	default:
		s.logger.Warn("unknown notification job type", zap.String("type", job.Type))
		return nil
	}
}

// fanOutMessage notifies every chat member other than the author. Delivery
// is a structured log line; a push or mail transport slots in here.
func (s *NotificationService) fanOutMessage(ctx context.Context, payload chatMessagePayload) error {
	members, err := s.chats.ListMembers(ctx, payload.ChatID)
	if err != nil {
		return fmt.Errorf("list chat members: %w", err)
	}
	for _, member := range members {
		if member.UserID == payload.AuthorID {
			continue
		}
		s.logger.Info("notify chat message",
			zap.String("chat_id", payload.ChatID),
			zap.String("message_id", payload.MessageID),
			zap.String("recipient_id", member.UserID))
	}
	return nil
}

// fanOutEvent notifies every user except the event creator.
func (s *NotificationService) fanOutEvent(ctx context.Context, payload eventCreatedPayload) error {
	recipients, err := s.events.ListRecipientIDs(ctx, payload.CreatorID)
	if err != nil {
		return fmt.Errorf("list event recipients: %w", err)
	}
	for _, recipientID := range recipients {
		s.logger.Info("notify event",
			zap.String("event_id", payload.EventID),
			zap.String("recipient_id", recipientID))
	}
	return nil
}
