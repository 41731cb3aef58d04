package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"wagerbot/payment"
	"wagerbot/service"

	log "github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

// YooKassaWebhook applies payment notifications to pending deposits after
// re-reading each payment from YooKassa. Any non-2xx response makes YooKassa redeliver, so only retryable failures
// and unknown payments answer with an error status.
type YooKassaWebhook struct {
	payments service.PaymentService
	observer WebhookObserver
}

// NewYooKassaWebhook creates the handler; observer may be nil
func NewYooKassaWebhook(payments service.PaymentService, observer WebhookObserver) *YooKassaWebhook {
	return &YooKassaWebhook{payments: payments, observer: observer}
}

func (h *YooKassaWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, body := h.handle(r)
	if h.observer != nil {
		h.observer.ObserveWebhook("yookassa", strconv.Itoa(status))
	}
	writeJSON(w, status, body)
}

func (h *YooKassaWebhook) handle(r *http.Request) (int, statusResponse) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return http.StatusBadRequest, statusResponse{Status: "error", Message: "unreadable body"}
	}

	notification, err := payment.ParseNotification(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected YooKassa notification")
		return http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()}
	}

	// The event only triggers a lookup; the gateway's own record decides the settlement
	if _, ok := notification.Outcome(); !ok {
		log.WithFields(log.Fields{
			"event":     notification.Event,
			"paymentId": notification.Object.ID,
		}).Debug("Ignoring YooKassa notification")
		return http.StatusOK, statusResponse{Status: "ok"}
	}

	result, err := h.payments.ConfirmDeposit(r.Context(), notification.Object.ID)
	switch {
	case err == nil:
		if result.AlreadySettled {
			return http.StatusOK, statusResponse{Status: "ok", Message: "already settled"}
		}
		return http.StatusOK, statusResponse{Status: "ok"}
	case errors.Is(err, service.ErrNotFound):
		log.WithField("paymentId", notification.Object.ID).Error("No pending deposit for YooKassa payment")
		return http.StatusNotFound, statusResponse{Status: "error", Message: "transaction not found"}
	case errors.Is(err, service.ErrInvalidReference), errors.Is(err, service.ErrInvalidOutcome):
		log.WithError(err).Warn("Rejected YooKassa notification")
		return http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()}
	case errors.Is(err, service.ErrInvalidState):
		log.WithError(err).Warn("YooKassa notification does not match payment state")
		return http.StatusConflict, statusResponse{Status: "error", Message: "payment not final"}
	case service.IsRetryable(err):
		log.WithField("paymentId", notification.Object.ID).Warn("Deposit settlement contended, asking for redelivery")
		return http.StatusServiceUnavailable, statusResponse{Status: "error", Message: "busy, retry later"}
	default:
		log.WithFields(log.Fields{
			"paymentId": notification.Object.ID,
			"error":     err,
		}).Error("Failed to settle deposit")
		return http.StatusInternalServerError, statusResponse{Status: "error", Message: "internal error"}
	}
}
