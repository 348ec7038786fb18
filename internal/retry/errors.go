package retry

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// TransientError marks a failure that may succeed on a later attempt, such as
// an HTTP 429 or 5xx from a public media API.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// throttlingCodes are AWS error codes that report rate limiting. They carry a
// client fault but are worth retrying.
var throttlingCodes = map[string]struct{}{
	"Throttling":                             {},
	"ThrottlingException":                    {},
	"ThrottledException":                     {},
	"TooManyRequestsException":               {},
	"RequestLimitExceeded":                   {},
	"SlowDown":                               {},
	"ProvisionedThroughputExceededException": {},
	"LimitExceededException":                 {},
	"RequestThrottled":                       {},
	"RequestTimeout":                         {},
	"RequestTimeoutException":                {},
}

// IsTransient is the default classifier. Context cancellation is never
// transient. TransientError, connection failures, AWS throttling and AWS
// errors not attributed to the caller are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttlingCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		return apiErr.ErrorFault() != smithy.FaultClient
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
