package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

// Kind is the failure class assigned to an error by Classify.
type Kind int

const (
	// KindUnknown means the error was not recognized by code or type.
	// Unknown failures are surfaced but never trip a circuit.
	KindUnknown Kind = iota
	// KindTransient covers throttling, unavailability and connectivity
	// failures. Only transient failures count toward opening a circuit.
	KindTransient
	// KindPermanent covers authorization, credential and validation
	// failures that a retry cannot fix.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// API error codes that indicate a transient condition.
var transientCodes = map[string]struct{}{
	"Throttling":                {},
	"ThrottlingException":       {},
	"RequestThrottled":          {},
	"RequestThrottledException": {},
	"TooManyRequestsException":  {},
	"ServiceUnavailable":        {},
	"ServiceUnavailableError":   {},
	"InternalError":             {},
	"InternalFailure":           {},
	"RequestTimeout":            {},
	"SlowDown":                  {},
}

// API error codes that indicate a permanent condition.
var permanentCodes = map[string]struct{}{
	"AccessDenied":               {},
	"AccessDeniedException":      {},
	"UnauthorizedOperation":      {},
	"InvalidClientTokenId":       {},
	"ExpiredToken":               {},
	"ExpiredTokenException":      {},
	"MissingAuthenticationToken": {},
	"SignatureDoesNotMatch":      {},
	"ValidationError":            {},
	"ValidationException":        {},
	"InvalidParameterValue":      {},
	"MalformedPolicyDocument":    {},
	"NoSuchEntity":               {},
	"ResourceNotFoundException":  {},
}

// Classify maps an arbitrary transport error to a Kind. It is the
// single gate deciding whether a failure counts toward circuit state:
// every RecordFailure call routes through it.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := transientCodes[code]; ok {
			return KindTransient
		}
		if _, ok := permanentCodes[code]; ok {
			return KindPermanent
		}
		return KindUnknown
	}

	// Connectivity failures never reach the service, so there is no API
	// error code to inspect.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	return KindUnknown
}
