package payment

import (
	"encoding/json"
	"fmt"

	"wagerbot/models"

	"github.com/go-playground/validator/v10"
)

// Notification is the body YooKassa posts to the webhook
type Notification struct {
	Type   string              `json:"type"`
	Event  string              `json:"event" validate:"required"`
	Object NotificationPayment `json:"object"`
}

// NotificationPayment is the payment object carried by a notification
type NotificationPayment struct {
	ID       string            `json:"id" validate:"required"`
	Status   string            `json:"status"`
	Amount   *Amount           `json:"amount,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var validate = validator.New()

// ParseNotification decodes and validates a webhook body
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("malformed notification: %w", err)
	}
	if err := validate.Struct(&n); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}
	return &n, nil
}

// Outcome maps the notification event to a deposit outcome. ok is false for
// events the ledger does not act on.
func (n *Notification) Outcome() (outcome models.DepositOutcome, ok bool) {
	switch n.Event {
	case EventPaymentSucceeded:
		return models.DepositOutcomeSucceeded, true
	case EventPaymentCanceled:
		return models.DepositOutcomeCancelled, true
	}
	return "", false
}
