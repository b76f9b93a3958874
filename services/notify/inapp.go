package notify

import (
	"context"
	"fmt"

	"market_pulse_backend/models"
	"market_pulse_backend/services/realtime"
)

// OwnerPublisher pushes an event to one owner's live sessions
type OwnerPublisher interface {
	PublishToOwner(ownerID, msgType string, data interface{})
}

// InAppChannel stores a notification and pushes it to connected sessions
type InAppChannel struct {
	store     Store
	publisher OwnerPublisher
}

func NewInAppChannel(store Store, publisher OwnerPublisher) *InAppChannel {
	return &InAppChannel{store: store, publisher: publisher}
}

func (c *InAppChannel) Name() string { return ChannelInApp }

func (c *InAppChannel) Deliver(ctx context.Context, event Event) error {
	alert := event.Alert
	label := alert.AssetSymbol
	if label == "" {
		label = alert.AssetID
	}

	n := &models.Notification{
		OwnerID:   alert.OwnerID,
		Type:      models.NotificationTypePriceAlert,
		Title:     fmt.Sprintf("%s price alert", label),
		Message:   fmt.Sprintf("%s is %s %s (now %s)", label, alert.Direction, alert.TargetPrice, event.Price),
		AlertID:   alert.ID,
		CreatedAt: event.At.UTC(),
	}
	if err := c.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	// Best effort: offline owners read it from the inbox
	if c.publisher != nil {
		c.publisher.PublishToOwner(alert.OwnerID, realtime.EventNotification, n)
	}
	return nil
}
