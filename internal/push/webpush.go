package push

import (
	"context"
	"fmt"
	"net/http"

	"rentline-api/pkg/config"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// WebPushTransport sends notifications over the web-push protocol with VAPID
// authentication. Retries are the caller's concern, not this transport's.
type WebPushTransport struct {
	options webpush.Options
	log     *zap.Logger
}

func NewWebPushTransport(cfg config.PushConfig, log *zap.Logger) *WebPushTransport {
	return &WebPushTransport{
		options: webpush.Options{
			Subscriber:      cfg.VAPIDSubject,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		},
		log: log,
	}
}

func (t *WebPushTransport) Send(ctx context.Context, sub *webpush.Subscription, data []byte) error {
	options := t.options
	resp, err := webpush.SendNotificationWithContext(ctx, data, sub, &options)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return ErrEndpointGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
