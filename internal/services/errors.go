package services

import (
	"errors"
)

var (
	// ErrAccountExists is returned when signing up with an email that already belongs to a verified account.
	ErrAccountExists = errors.New("auth flow: account already exists")
	// ErrAccountNotVerified is returned when logging in before completing email verification.
	ErrAccountNotVerified = errors.New("auth flow: account not verified")
	// ErrInvalidOTP wraps every one-time code failure so callers can report them uniformly.
	ErrInvalidOTP = errors.New("auth flow: invalid or expired code")
	// ErrDeliveryFailed indicates the code was stored but could not be emailed.
	ErrDeliveryFailed = errors.New("auth flow: code delivery failed")
	// ErrOAuthEmailUnverified is returned when the provider does not vouch for the email address.
	ErrOAuthEmailUnverified = errors.New("auth flow: provider email not verified")
	// ErrOAuthIdentityIncomplete is returned when the provider assertion lacks a subject or email.
	ErrOAuthIdentityIncomplete = errors.New("auth flow: provider identity incomplete")
	// ErrOAuthLinkConflict is returned when the email is already linked to a different external account.
	ErrOAuthLinkConflict = errors.New("auth flow: email linked to another external account")

	// ErrNoteNotFound indicates the note does not exist or belongs to another user.
	ErrNoteNotFound = errors.New("note service: note not found")
)
