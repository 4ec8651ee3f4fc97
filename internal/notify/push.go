package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"palaver/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

const (
	queueSize   = 256
	pushTTL     = 24 * 60 * 60
	sendTimeout = 10 * time.Second
)

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact (mailto: or https: URL) push services see.
	Subscriber string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type SubscriptionStore interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(userID, endpoint string) error
}

// Payload is what the service worker receives.
type Payload struct {
	Type         models.NotificationType `json:"type"`
	Notification models.Notification     `json:"notification"`
}

type job struct {
	userID string
	n      models.Notification
}

// Pusher delivers notifications of offline users over Web Push. Notify
// only queues; Run does the sending.
type Pusher struct {
	cfg    Config
	store  SubscriptionStore
	client webpush.HTTPClient
	jobs   chan job
	log    *zap.Logger
}

func NewPusher(cfg Config, store SubscriptionStore, log *zap.Logger) *Pusher {
	return &Pusher{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: sendTimeout},
		jobs:   make(chan job, queueSize),
		log:    log,
	}
}

func (p *Pusher) Notify(userID string, n models.Notification) {
	if !p.cfg.Enabled() {
		return
	}
	select {
	case p.jobs <- job{userID: userID, n: n}:
	default:
		p.log.Warn("push queue full, dropping notification",
			zap.String("user_id", userID),
			zap.String("notification_id", n.ID))
	}
}

// Run sends queued notifications until ctx is done.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case j := <-p.jobs:
			p.deliver(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pusher) deliver(ctx context.Context, j job) {
	subs, err := p.store.ListPushSubscriptions(j.userID)
	if err != nil {
		p.log.Error("failed to load push subscriptions", zap.String("user_id", j.userID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(Payload{Type: j.n.Type, Notification: j.n})
	if err != nil {
		p.log.Error("failed to encode push payload", zap.Error(err))
		return
	}

	for _, sub := range subs {
		p.send(ctx, sub, body)
	}
}

func (p *Pusher) send(ctx context.Context, sub models.PushSubscription, body []byte) {
	log := p.log.With(zap.String("user_id", sub.UserID), zap.String("endpoint", sub.Endpoint))

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.cfg.Subscriber,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		TTL:             pushTTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		log.Warn("push failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The browser dropped the subscription.
		if err := p.store.DeletePushSubscription(sub.UserID, sub.Endpoint); err != nil {
			log.Warn("failed to delete stale subscription", zap.Error(err))
			return
		}
		log.Info("stale push subscription removed")
	case resp.StatusCode >= 300:
		log.Warn("push rejected", zap.Int("status", resp.StatusCode))
	default:
		log.Debug("push delivered")
	}
}
