package common

import (
	"errors"
	"fmt"

	"wagerbot/service"
)

// BotError represents a structured error with user-facing and internal messages
type BotError struct {
	UserMessage string // Message shown to the Telegram user
	LogMessage  string // Internal message for logging
	Err         error  // Underlying error
}

// Error implements the error interface
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.LogMessage, e.Err)
	}
	return e.LogMessage
}

// Unwrap returns the underlying error
func (e *BotError) Unwrap() error {
	return e.Err
}

// NewUserError creates an error for user-caused issues (bad arguments, insufficient funds, etc)
func NewUserError(userMessage string, logMessage string) *BotError {
	return &BotError{
		UserMessage: userMessage,
		LogMessage:  logMessage,
	}
}

// NewSystemError creates an error for system issues (database, gateway, unexpected state)
func NewSystemError(err error, logMessage string) *BotError {
	return &BotError{
		UserMessage: GenericErrorMessage,
		LogMessage:  logMessage,
		Err:         err,
	}
}

// GenericErrorMessage is shown for anything that is not the user's fault
const GenericErrorMessage = "Something went wrong. Please try again later."

// UserMessage maps a ledger error to the text shown in chat
func UserMessage(err error) string {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.UserMessage
	}

	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		return fmt.Sprintf("Amount must be positive, at most %s, with at most two decimal places.", FormatAmount(service.MaxAmount))
	case errors.Is(err, service.ErrInsufficientFunds):
		return "Insufficient funds. Top up with /deposit <amount>."
	case errors.Is(err, service.ErrNotFound):
		return "Not found. Check the ID and try again."
	case errors.Is(err, service.ErrInvalidState):
		return "This match can no longer do that. Check its status with /matches."
	case errors.Is(err, service.ErrSelfJoin):
		return "You cannot join your own match."
	case errors.Is(err, service.ErrNotAParticipant):
		return "Only the two players of a match can claim it."
	case errors.Is(err, service.ErrNotOwner):
		return "Only the creator of a match can cancel it."
	case errors.Is(err, service.ErrDuplicateReference):
		return "This payment is already recorded."
	case errors.Is(err, service.ErrContentionTimeout):
		return "The ledger is busy right now. Please send the command again."
	}
	return GenericErrorMessage
}
