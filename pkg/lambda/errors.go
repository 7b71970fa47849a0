package lambda

import (
	"errors"

	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
)

// IsThrottle reports whether err is a rate-limit rejection.
func IsThrottle(err error) bool {
	var tooMany *lambdatypes.TooManyRequestsException

	return errors.As(err, &tooMany) || hasErrorCode(err, "TooManyRequestsException")
}

// IsServiceError reports whether err is a platform-side failure.
func IsServiceError(err error) bool {
	var svc *lambdatypes.ServiceException

	return errors.As(err, &svc) || hasErrorCode(err, "ServiceException")
}

// IsConflict reports whether err means another configuration mutation is
// still in flight for the function.
func IsConflict(err error) bool {
	var conflict *lambdatypes.ResourceConflictException

	return errors.As(err, &conflict) || hasErrorCode(err, "ResourceConflictException")
}

// IsNotFound reports whether err means the function does not exist. Not
// retryable; a missing function fails its whole configuration.
func IsNotFound(err error) bool {
	var notFound *lambdatypes.ResourceNotFoundException

	return errors.As(err, &notFound) || hasErrorCode(err, "ResourceNotFoundException")
}

// IsAccessDenied reports whether err is an authorization failure. Not
// retryable; the caller's permissions will not change mid-run.
func IsAccessDenied(err error) bool {
	return hasErrorCode(err, "AccessDeniedException")
}

// IsRetryable reports whether err is transient: throttling or a
// platform-side failure.
func IsRetryable(err error) bool {
	return IsThrottle(err) || IsServiceError(err)
}

func hasErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.ErrorCode() == code
}
