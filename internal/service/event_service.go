package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Lifecycle event types published to downstream consumers (the invitation
// email sender among them).
const (
	EventAttemptInvited      = "attempt.invited"
	EventAttemptStarted      = "attempt.started"
	EventAttemptCompleted    = "attempt.completed"
	EventAttemptEvaluated    = "attempt.evaluated"
	EventAssessmentPublished = "assessment.published"
	EventAssessmentExpired   = "assessment.expired"
)

// LifecycleEvent describes a state change on an assessment or attempt.
type LifecycleEvent struct {
	Source         string    `json:"source"`
	Type           string    `json:"type"`
	AssessmentID   uint      `json:"assessment_id,omitempty"`
	AttemptID      uint      `json:"attempt_id,omitempty"`
	CandidateEmail string    `json:"candidate_email,omitempty"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher fans lifecycle events out to Redis and NATS. Consumers own
// durability; publishing is best effort and callers treat failures as
// non-fatal.
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type eventService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string
}

// NewEventService constructs the publisher. Either backend may be nil.
func NewEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventPublisher {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":lifecycle"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".lifecycle"
	}

	return &eventService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "event_service").Logger(),
		nodeID:      uuid.NewString(),
	}
}

func (s *eventService) Publish(ctx context.Context, event LifecycleEvent) error {
	event.Source = s.nodeID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	s.logger.Debug().Str("type", event.Type).Uint("attempt_id", event.AttemptID).Msg("lifecycle event published")

	return nil
}
