package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code, so wrapped copies from WithError still match their sentinel
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Sentinel errors raised by the queue layer
var (
	ErrInvalidTransition = errors.New("invalid queue status transition")
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrEventNotFound     = errors.New("webhook event not found")
	// ErrClaimLost means the entry is no longer held by the caller's claim,
	// typically because a stale-claim sweep handed it to another runner.
	ErrClaimLost = errors.New("queue claim lost")
)

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing trigger token",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrWebhookNotFound = &AppError{
		Code:       "WEBHOOK_NOT_FOUND",
		Message:    "Webhook event not found",
		StatusCode: 404,
	}

	ErrInvalidSignature = &AppError{
		Code:       "INVALID_SIGNATURE",
		Message:    "Webhook signature verification failed",
		StatusCode: 401,
	}

	ErrMissingEventID = &AppError{
		Code:       "MISSING_EVENT_ID",
		Message:    "Webhook event id could not be determined",
		StatusCode: 422,
	}

	ErrMissingEventType = &AppError{
		Code:       "MISSING_EVENT_TYPE",
		Message:    "Webhook event type could not be determined",
		StatusCode: 422,
	}

	ErrInvalidPayload = &AppError{
		Code:       "INVALID_PAYLOAD",
		Message:    "Webhook payload must be a JSON document",
		StatusCode: 400,
	}

	ErrUnknownSource = &AppError{
		Code:       "UNKNOWN_SOURCE",
		Message:    "No ingestion endpoint for this webhook source",
		StatusCode: 404,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many webhook deliveries, retry later",
		StatusCode: 429,
	}

	ErrQueueUnavailable = &AppError{
		Code:       "QUEUE_UNAVAILABLE",
		Message:    "Webhook queue is unavailable",
		StatusCode: 500,
	}
)
