package push

import (
	"context"
	"errors"

	"rentline-api/pkg/config"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// ErrEndpointGone is the permanent-failure signal: the delivery endpoint no
// longer exists and the subscription should be dropped. Every other failure
// is transient from the caller's point of view.
var ErrEndpointGone = errors.New("push endpoint gone")

// Transport delivers a payload to one web-push subscription.
type Transport interface {
	Send(ctx context.Context, sub *webpush.Subscription, data []byte) error
}

// NewTransport selects the transport once at startup: the web-push sender
// when VAPID keys are configured, a log-only sink otherwise. Business logic
// never branches on configuration.
func NewTransport(cfg config.PushConfig, log *zap.Logger) Transport {
	if cfg.VAPIDPrivateKey == "" {
		log.Info("VAPID keys not configured, push notifications use the log sink")
		return NewSink(log)
	}
	return NewWebPushTransport(cfg, log)
}
