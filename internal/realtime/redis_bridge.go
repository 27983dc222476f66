package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "clubdesk:receipts:"

// ChannelFor returns the Redis channel carrying a member's delivery events.
func ChannelFor(memberID int64) string {
	return channelPrefix + strconv.FormatInt(memberID, 10)
}

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisBridge relays events between server instances over Redis pub/sub.
// Local subscribers are served by the wrapped Hub; events published here are
// delivered locally at once and forwarded to the other instances.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	origin string
	log    *zap.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, log *zap.Logger) *RedisBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{
		client: client,
		hub:    hub,
		origin: uuid.NewString(),
		log:    log,
	}
}

var _ Notifier = (*RedisBridge)(nil)

func (b *RedisBridge) Subscribe(memberID int64, fn func(Event)) func() {
	return b.hub.Subscribe(memberID, fn)
}

func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	b.hub.Publish(ctx, ev)

	data, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		b.log.Error("encode realtime event", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, ChannelFor(ev.RecipientMemberID), data).Err(); err != nil {
		b.log.Warn("relay realtime event", zap.Int64("member_id", ev.RecipientMemberID), zap.Error(err))
	}
}

// Start subscribes to every member channel and relays remote events to the
// local hub until ctx is cancelled. It returns once the subscription is
// confirmed.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe realtime channels: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				b.relay(m)
			}
		}
	}()
	return nil
}

func (b *RedisBridge) relay(m *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
		b.log.Warn("decode realtime event", zap.String("channel", m.Channel), zap.Error(err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	if !strings.HasSuffix(m.Channel, ":"+strconv.FormatInt(env.Event.RecipientMemberID, 10)) {
		b.log.Warn("realtime event on foreign channel", zap.String("channel", m.Channel))
		return
	}
	b.hub.Deliver(env.Event)
}
