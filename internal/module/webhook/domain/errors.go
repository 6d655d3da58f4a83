package domain

import "errors"

// Pipeline errors. Only ErrInvalidSignature, ErrMalformedPayload and
// ErrUnknownGateway fail the acknowledgement sent to the provider.
var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedPayload     = errors.New("malformed webhook payload")
	ErrUnknownGateway       = errors.New("unknown payment gateway")
	ErrUnknownNativeStatus  = errors.New("unknown native payment status")
	ErrDuplicateEvent       = errors.New("webhook event already processed")
	ErrInvalidTransition    = errors.New("invalid payment status transition")
	ErrCollaboratorDispatch = errors.New("collaborator dispatch failed")
	ErrPermanentDispatch    = errors.New("collaborator dispatch permanently failed")
)

// Store errors.
var (
	ErrProjectionNotFound = errors.New("payment projection not found")
	ErrVersionConflict    = errors.New("payment projection version conflict")
)

// FailsAcknowledgement reports whether err must be surfaced to the provider as a failure.
func FailsAcknowledgement(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrUnknownGateway)
}
