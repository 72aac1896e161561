package services

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to tell them apart.
var (
	// ErrProbeFailure is an expected failure of a target: HTTP, TLS or WHOIS.
	ErrProbeFailure = errors.New("probe failure")

	// ErrDataIntegrity means a referenced record is missing, typically a
	// monitor deleted while a sweep was running.
	ErrDataIntegrity = errors.New("data integrity failure")

	// ErrNotification is a delivery failure of an email or Slack message.
	ErrNotification = errors.New("notification failure")

	// ErrConfiguration is invalid monitor input.
	ErrConfiguration = errors.New("configuration failure")

	// ErrWorkflow is a rejected incident state transition.
	ErrWorkflow = errors.New("workflow violation")
)

var (
	ErrNoCertificate     = errors.New("no SSL certificate found for this domain")
	ErrWhoisNoData       = errors.New("no WHOIS data")
	ErrExpiryNotFound    = errors.New("could not find expiry date in WHOIS data")
	ErrExpiryUnparseable = errors.New("invalid expiry date format")
	ErrNotAcknowledged   = errors.New("incident must be acknowledged before it can be resolved")
	ErrDuplicateMonitor  = errors.New("monitor already present")
)

// Error carries a kind, an optional cause and a message.
type Error struct {
	kind    error
	from    error
	message string
}

func newError(kind error, from error, format string, args ...any) Error {
	msg := fmt.Sprintf(format, args...)
	if from != nil {
		if msg != "" {
			msg += ": "
		}
		msg += from.Error()
	}

	return Error{
		kind:    kind,
		from:    from,
		message: msg,
	}
}

func (e Error) Error() string {
	return e.message
}

func (e Error) Unwrap() error {
	return e.from
}

func (e Error) Is(err error) bool {
	return e.kind == err
}

// Kind returns the kind of the error.
func (e Error) Kind() error {
	return e.kind
}
