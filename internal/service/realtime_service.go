package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classforge/classforge-api/internal/dto"
	"github.com/classforge/classforge-api/internal/observability"
)

const resultBufferSize = 16

// RealtimeService pushes evaluation results to the connected sessions of a
// single user. Delivery is best effort: sessions that are absent or slow
// simply miss the push and fall back to the persisted submission snapshot.
type RealtimeService interface {
	NotifyResult(ctx context.Context, event dto.ResultEvent)
	Subscribe(userID uint) (<-chan dto.ResultEvent, func())
	Start(ctx context.Context)
}

type realtimeService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *resultBroker
	nodeID       string
}

type resultEnvelope struct {
	Source string          `json:"source"`
	Event  dto.ResultEvent `json:"event"`
	SentAt time.Time       `json:"sent_at"`
}

type resultBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.ResultEvent]struct{}
}

// NewRealtimeService constructs the push channel. Redis and NATS are both
// optional; when present they fan results out to sessions held by other
// nodes.
func NewRealtimeService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RealtimeService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":results"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".results"
	}

	return &realtimeService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "realtime_service").Logger(),
		broker: &resultBroker{
			subscribers: make(map[uint]map[chan dto.ResultEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *realtimeService) NotifyResult(ctx context.Context, event dto.ResultEvent) {
	if event.Event == "" {
		event.Event = dto.ResultEventName
	}

	s.broker.broadcast(event.UserID, event)
	observability.ResultsDeliveredTotal().WithLabelValues(event.Summary.OverallStatus).Inc()

	if err := s.publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", event.UserID).Msg("failed to fan out evaluation result")
	}
}

func (s *realtimeService) Subscribe(userID uint) (<-chan dto.ResultEvent, func()) {
	channel := make(chan dto.ResultEvent, resultBufferSize)

	s.broker.subscribe(userID, channel)
	observability.RealtimeClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(userID, channel)
		observability.RealtimeClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *realtimeService) publish(ctx context.Context, event dto.ResultEvent) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	envelope := resultEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("result redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats results subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain result nats subscription")
		}
	}()
}

func (s *realtimeService) handleEnvelope(payload []byte) {
	var envelope resultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid result envelope payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	event := envelope.Event
	if event.Event == "" {
		event.Event = dto.ResultEventName
	}
	s.broker.broadcast(event.UserID, event)
}

func (b *resultBroker) subscribe(userID uint, ch chan dto.ResultEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.ResultEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *resultBroker) unsubscribe(userID uint, ch chan dto.ResultEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *resultBroker) broadcast(userID uint, event dto.ResultEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}
