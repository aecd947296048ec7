// Package notify persists notifications for the marketplace UI. Delivery is
// best-effort: the workflow swallows any error returned here.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"argus/internal/domain"
	"argus/internal/store"
)

// StoreSender writes one notification row per event. Recipients may be
// investigator IDs or raw user IDs; investigator IDs are resolved to the
// backing user account before the row is written.
type StoreSender struct {
	Store store.Store
}

func (s StoreSender) Notify(ctx context.Context, event, recipientID, mandateID, title string) error {
	userID, err := s.resolveUser(ctx, recipientID)
	if err != nil {
		return err
	}
	return s.Store.InsertNotification(ctx, domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      event,
		MandateID: mandateID,
		Title:     title,
	})
}

func (s StoreSender) resolveUser(ctx context.Context, recipientID string) (string, error) {
	inv, err := s.Store.GetInvestigator(ctx, recipientID)
	if err == nil {
		return inv.UserID, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return recipientID, nil
	}
	return "", err
}

// Discard drops every notification. Used when notifications are disabled.
type Discard struct{}

func (Discard) Notify(ctx context.Context, event, recipientID, mandateID, title string) error {
	return nil
}
