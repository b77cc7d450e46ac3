package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"rentline-api/internal/model"
	"rentline-api/internal/push"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTransport delivers nothing and answers per endpoint.
type fakeTransport struct {
	errByEndpoint map[string]error
	delivered     []string
}

func (f *fakeTransport) Send(_ context.Context, sub *webpush.Subscription, _ []byte) error {
	if err, ok := f.errByEndpoint[sub.Endpoint]; ok {
		return err
	}
	f.delivered = append(f.delivered, sub.Endpoint)
	return nil
}

func newNotificationFixture(t *testing.T) (*NotificationService, *fakeTransport, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	transport := &fakeTransport{errByEndpoint: map[string]error{}}
	return NewNotificationService(db, transport, noopLogger()), transport, db
}

func subscriptionJSON(endpoint string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"endpoint":%q,"keys":{"p256dh":"BPk","auth":"aGk"}}`, endpoint))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	svc, _, db := newNotificationFixture(t)
	ctx := context.Background()

	userID := seedUser(t, db, "alice@example.com")
	payload := subscriptionJSON("https://push.example.com/sub/1")

	first, err := svc.Subscribe(ctx, userID, payload)
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, userID, payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&model.DeviceSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubscribeDerivesIDFromEndpoint(t *testing.T) {
	svc, _, db := newNotificationFixture(t)
	ctx := context.Background()

	userID := seedUser(t, db, "alice@example.com")

	id, err := svc.Subscribe(ctx, userID, subscriptionJSON("https://push.example.com/sub/1"))
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionID("https://push.example.com/sub/1"), id)

	other, err := svc.Subscribe(ctx, userID, subscriptionJSON("https://push.example.com/sub/2"))
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	subs, err := svc.SubscriptionsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSubscribeRejectsBadPayload(t *testing.T) {
	svc, _, db := newNotificationFixture(t)
	ctx := context.Background()
	userID := seedUser(t, db, "alice@example.com")

	_, err := svc.Subscribe(ctx, userID, json.RawMessage(`not json`))
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.Subscribe(ctx, userID, json.RawMessage(`{"keys":{}}`))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestUnsubscribe(t *testing.T) {
	svc, _, db := newNotificationFixture(t)
	ctx := context.Background()

	userID := seedUser(t, db, "alice@example.com")
	payload := subscriptionJSON("https://push.example.com/sub/1")
	_, err := svc.Subscribe(ctx, userID, payload)
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, payload))

	subs, err := svc.SubscriptionsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// Absence is not an error.
	assert.NoError(t, svc.Unsubscribe(ctx, payload))
}

func TestDispatchDeliversToTargets(t *testing.T) {
	svc, transport, db := newNotificationFixture(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	carol := seedUser(t, db, "carol@example.com")

	_, err := svc.Subscribe(ctx, alice, subscriptionJSON("https://push.example.com/alice"))
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, bob, subscriptionJSON("https://push.example.com/bob"))
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, carol, subscriptionJSON("https://push.example.com/carol"))
	require.NoError(t, err)

	payload := PushPayload{Title: "New message", URL: "/chat/abc"}
	require.NoError(t, svc.Dispatch(ctx, payload, []uuid.UUID{alice, bob}))

	assert.ElementsMatch(t,
		[]string{"https://push.example.com/alice", "https://push.example.com/bob"},
		transport.delivered)
}

func TestDispatchDropsGoneSubscription(t *testing.T) {
	svc, transport, db := newNotificationFixture(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice@example.com")
	_, err := svc.Subscribe(ctx, alice, subscriptionJSON("https://push.example.com/dead"))
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, alice, subscriptionJSON("https://push.example.com/live"))
	require.NoError(t, err)

	transport.errByEndpoint["https://push.example.com/dead"] = push.ErrEndpointGone

	payload := PushPayload{Title: "ping", URL: "/"}
	require.NoError(t, svc.Dispatch(ctx, payload, []uuid.UUID{alice}))

	// The dead endpoint's subscription is gone, the live one stays.
	subs, err := svc.SubscriptionsByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubscriptionID("https://push.example.com/live"), subs[0].ID)
}

func TestDispatchKeepsSubscriptionOnTransientFailure(t *testing.T) {
	svc, transport, db := newNotificationFixture(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice@example.com")
	_, err := svc.Subscribe(ctx, alice, subscriptionJSON("https://push.example.com/flaky"))
	require.NoError(t, err)

	transport.errByEndpoint["https://push.example.com/flaky"] = fmt.Errorf("503 service unavailable")

	payload := PushPayload{Title: "ping", URL: "/"}
	require.NoError(t, svc.Dispatch(ctx, payload, []uuid.UUID{alice}))

	subs, err := svc.SubscriptionsByUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestDispatchNoTargets(t *testing.T) {
	svc, transport, _ := newNotificationFixture(t)

	require.NoError(t, svc.Dispatch(context.Background(), PushPayload{Title: "x"}, nil))
	assert.Empty(t, transport.delivered)
}
