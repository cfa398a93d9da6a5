package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/shared"
)

// ValidationError reports input rejected before any provider call.
type ValidationError = shared.ValidationError

// DataAccessError reports a failed relation query.
type DataAccessError = shared.DataAccessError

// Reason classifies a provider failure.
type Reason string

const (
	ReasonAlreadyRegistered  Reason = "already_registered"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonInvalidOTP         Reason = "invalid_otp"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonNoSession          Reason = "no_session"
	ReasonGeneric            Reason = "generic"
)

var reasonKeys = map[Reason]string{
	ReasonAlreadyRegistered:  "errors.alreadyRegistered",
	ReasonInvalidCredentials: "errors.invalidCredentials",
	ReasonInvalidOTP:         "errors.invalidOtp",
	ReasonRateLimited:        "errors.rateLimited",
	ReasonNoSession:          "errors.notSignedIn",
	ReasonGeneric:            shared.GenericMessageKey,
}

// ProviderError is a classified identity provider failure.
type ProviderError struct {
	Reason Reason
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: %s: %v", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MessageKey returns the catalog key describing the failure.
func (e *ProviderError) MessageKey() string {
	if key, ok := reasonKeys[e.Reason]; ok {
		return key
	}
	return shared.GenericMessageKey
}

// MessageKey maps any error to a catalog key suitable for users.
func MessageKey(err error) string {
	return shared.MessageKey(err)
}

// ReasonOf returns the provider failure reason carried by err, or "".
func ReasonOf(err error) Reason {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return ""
}

func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	reason := ReasonGeneric
	switch {
	case errors.Is(err, identity.ErrAlreadyRegistered):
		reason = ReasonAlreadyRegistered
	case errors.Is(err, identity.ErrInvalidCredentials):
		reason = ReasonInvalidCredentials
	case errors.Is(err, identity.ErrInvalidOTP):
		reason = ReasonInvalidOTP
	case errors.Is(err, identity.ErrRateLimited):
		reason = ReasonRateLimited
	case errors.Is(err, identity.ErrNoSession):
		reason = ReasonNoSession
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = ReasonGeneric
	case strings.Contains(strings.ToLower(err.Error()), "already registered"):
		// Remote providers report duplicates only in the message text.
		reason = ReasonAlreadyRegistered
	}
	return &ProviderError{Reason: reason, Err: err}
}
