package manager

import (
	"errors"
	"fmt"

	"github.com/cuemby/herald/pkg/wire"
)

var (
	// ErrDuplicateKey is returned by AddEvent when the key is already stored
	ErrDuplicateKey = errors.New("event key already exists")
	// ErrNotFound is returned when no event is stored under a key
	ErrNotFound = errors.New("event not found")
	// ErrInvalidOwnerAddress is returned by SetOwnerID for wildcard addresses
	ErrInvalidOwnerAddress = errors.New("owner address must not contain wildcards")
	// ErrOwnerNotSet is returned when an event is added before SetOwnerID
	ErrOwnerNotSet = errors.New("owner address not set")
	// ErrInvalidSubscribers is returned by AddEvent for a produced event
	// without subscribers or with a wildcard subscriber
	ErrInvalidSubscribers = errors.New("invalid subscriber set")
	// ErrNoMatch is returned when a cancel or update request matches no event
	ErrNoMatch = errors.New("no matching event")
	// ErrNoEventIDs is returned when every id of a payload namespace is taken
	ErrNoEventIDs = errors.New("no free event id")
	// ErrNoRequestIDs is returned when every request id is in flight
	ErrNoRequestIDs = errors.New("no free request id")
	// ErrAllSendsFailed is returned by GenerateEvent when no subscriber
	// could be reached
	ErrAllSendsFailed = errors.New("notification failed for every subscriber")
	// ErrNoTransport is returned by operations that need to reach a peer
	// when the manager was built without a transport
	ErrNoTransport = errors.New("no transport configured")
)

// RequestError is a refusal of a lifecycle request. Code is the response
// code carried by the RejectEventRequest.
type RequestError struct {
	Code        wire.ResponseCode
	PayloadType *wire.Code
}

func (e *RequestError) Error() string {
	if e.PayloadType != nil {
		return fmt.Sprintf("request rejected for %s: %s", *e.PayloadType, e.Code)
	}
	return fmt.Sprintf("request rejected: %s", e.Code)
}

func reject(code wire.ResponseCode, payloadType wire.Code) *RequestError {
	return &RequestError{Code: code, PayloadType: &payloadType}
}

// ResponseCodeOf returns the response code a failed operation maps to on the
// wire. Errors that are not a RequestError map to invalid event setup.
func ResponseCodeOf(err error) wire.ResponseCode {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code
	}
	switch {
	case errors.Is(err, ErrNoEventIDs), errors.Is(err, ErrOwnerNotSet):
		return wire.ResponseConnectionRefused
	default:
		return wire.ResponseInvalidEventSetup
	}
}
