package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"rentline-api/internal/model"
	"rentline-api/internal/push"
	"rentline-api/prometheus"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PushPayload is the notification content delivered to subscribed devices.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url"`
}

// NotificationService manages device subscriptions and dispatches
// notifications through the push transport.
type NotificationService struct {
	db        *gorm.DB
	transport push.Transport
	log       *zap.Logger
}

func NewNotificationService(db *gorm.DB, transport push.Transport, log *zap.Logger) *NotificationService {
	return &NotificationService{db: db, transport: transport, log: log}
}

// Subscribe stores a device subscription under the deterministic id derived
// from its endpoint. Re-subscribing with the same endpoint hits the primary
// key and is treated as success.
func (s *NotificationService) Subscribe(ctx context.Context, userID uuid.UUID, subscription json.RawMessage) (uuid.UUID, error) {
	endpoint, err := subscriptionEndpoint(subscription)
	if err != nil {
		return uuid.Nil, err
	}
	subID := model.SubscriptionID(endpoint)

	record := model.DeviceSubscription{
		ID:           subID,
		UserID:       userID,
		Subscription: string(subscription),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Info("Subscription already exists", zap.String("subscription_id", subID.String()))
			return subID, nil
		}
		return uuid.Nil, translateStoreError(err, "save subscription")
	}

	s.log.Info("Subscription saved",
		zap.String("subscription_id", subID.String()),
		zap.String("user_id", userID.String()))
	return subID, nil
}

// Unsubscribe deletes the subscription addressed by the payload's endpoint.
// Absence is not an error.
func (s *NotificationService) Unsubscribe(ctx context.Context, subscription json.RawMessage) error {
	endpoint, err := subscriptionEndpoint(subscription)
	if err != nil {
		return err
	}
	return s.unsubscribeByID(ctx, model.SubscriptionID(endpoint))
}

func (s *NotificationService) unsubscribeByID(ctx context.Context, subID uuid.UUID) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := s.db.WithContext(ctx).Delete(&model.DeviceSubscription{}, "id = ?", subID)
	if result.Error != nil {
		return translateStoreError(result.Error, "remove subscription")
	}
	if result.RowsAffected > 0 {
		s.log.Info("Subscription removed", zap.String("subscription_id", subID.String()))
	} else {
		s.log.Info("Subscription not found", zap.String("subscription_id", subID.String()))
	}
	return nil
}

// Dispatch delivers the payload to every subscription of the target users.
// A permanent delivery failure drops the subscription; transient failures
// are logged and left in place.
func (s *NotificationService) Dispatch(ctx context.Context, payload PushPayload, targetUserIDs []uuid.UUID) error {
	if len(targetUserIDs) == 0 {
		return nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var subscriptions []model.DeviceSubscription
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", targetUserIDs).
		Find(&subscriptions).Error
	if err != nil {
		return translateStoreError(err, "load subscriptions")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Wrap(KindInternal, "encode push payload", err)
	}

	for _, record := range subscriptions {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(record.Subscription), &sub); err != nil {
			s.log.Warn("Dropping undecodable subscription",
				zap.String("subscription_id", record.ID.String()),
				zap.Error(err))
			continue
		}

		err := s.transport.Send(ctx, &sub, data)
		switch {
		case err == nil:
			prometheus.RecordPushDelivery("ok")
		case errors.Is(err, push.ErrEndpointGone):
			prometheus.RecordPushDelivery("gone")
			s.log.Info("Push endpoint gone, removing subscription",
				zap.String("subscription_id", record.ID.String()))
			if err := s.unsubscribeByID(ctx, record.ID); err != nil {
				s.log.Error("Failed to remove dead subscription", zap.Error(err))
			}
		default:
			prometheus.RecordPushDelivery("transient")
			s.log.Error("Push delivery failed",
				zap.String("subscription_id", record.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// SubscriptionsByUser lists a user's stored device subscriptions.
func (s *NotificationService) SubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]model.DeviceSubscription, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var subscriptions []model.DeviceSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subscriptions).Error
	if err != nil {
		return nil, translateStoreError(err, "list subscriptions")
	}
	return subscriptions, nil
}

func subscriptionEndpoint(subscription json.RawMessage) (string, error) {
	var probe struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal(subscription, &probe); err != nil {
		return "", Validation("malformed subscription payload")
	}
	if probe.Endpoint == "" {
		return "", Validation("subscription payload missing endpoint")
	}
	return probe.Endpoint, nil
}
