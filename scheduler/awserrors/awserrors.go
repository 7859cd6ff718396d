package awserrors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"
)

// ProviderError is a failure reported by the compute control plane, or by the
// transport used to reach it. Code is empty for transport failures.
type ProviderError struct {
	Code      string
	Operation string
	Message   string
	Err       error
}

// Error renders the failure the way the AWS CLI and SDKs print service errors.
func (e *ProviderError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("An error occurred (%s) when calling the %s operation: %s", e.Code, e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewError creates a ProviderError for a bare error code, filling the message
// from ErrorLookup when the code is known.
func NewError(operation, code string) *ProviderError {
	msg, ok := ErrorLookup[code]
	if !ok {
		msg = code
	}
	return &ProviderError{Code: code, Operation: operation, Message: msg}
}

// FromAWS normalises an error returned by an SDK call into a ProviderError.
// A nil error stays nil and an existing ProviderError is returned unchanged.
func FromAWS(operation string, err error) error {
	if err == nil {
		return nil
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		msg := aerr.Message()
		if msg == "" {
			msg = ErrorLookup[aerr.Code()]
		}
		if orig := aerr.OrigErr(); orig != nil {
			if msg == "" {
				msg = orig.Error()
			} else {
				msg = fmt.Sprintf("%s: %s", msg, orig.Error())
			}
		}
		return &ProviderError{Code: aerr.Code(), Operation: operation, Message: msg, Err: err}
	}

	return &ProviderError{Operation: operation, Message: err.Error(), Err: err}
}

var (
	ErrorAuthFailure                  = "AuthFailure"
	ErrorIncorrectInstanceState       = "IncorrectInstanceState"
	ErrorInsufficientInstanceCapacity = "InsufficientInstanceCapacity"
	ErrorInternalError                = "InternalError"
	ErrorInvalidInstanceIDMalformed   = "InvalidInstanceID.Malformed"
	ErrorInvalidInstanceIDNotFound    = "InvalidInstanceID.NotFound"
	ErrorInvalidParameterValue        = "InvalidParameterValue"
	ErrorMissingParameter             = "MissingParameter"
	ErrorRequestLimitExceeded         = "RequestLimitExceeded"
	ErrorServerInternal               = "ServerInternal"
	ErrorUnauthorizedOperation        = "UnauthorizedOperation"
	ErrorUnavailable                  = "Unavailable"
	ErrorUnsupportedOperation         = "UnsupportedOperation"
)

// ErrorLookup holds the default messages for the error codes an instance
// start or stop call can produce.
var ErrorLookup = map[string]string{
	ErrorAuthFailure:                  "The provided credentials could not be validated. You might not be authorized to carry out the request; for example, trying to associate an Elastic IP address that is not yours, or trying to use an AMI for which you do not have permissions. Ensure that your account is authorized to use Amazon EC2, that your credit card details are correct, and that you are using the correct credentials.",
	ErrorIncorrectInstanceState:       "The instance is in an incorrect state for the requested action. For example, some instance attributes, such as user data, can only be modified if the instance is in a 'stopped' state. If you are associating an Elastic IP address with a network interface, ensure that the instance that the interface is attached to is not in the 'pending' state.",
	ErrorInsufficientInstanceCapacity: "There is not enough capacity to fulfill your request. This error can occur if you launch a new instance, restart a stopped instance, create a new Capacity Reservation, or modify an existing Capacity Reservation. Reduce the number of instances in your request, or wait for additional capacity to become available.",
	ErrorInternalError:                "An internal error has occurred. Retry your request, but if the problem persists, contact us with details by posting a message on AWS re:Post.",
	ErrorInvalidInstanceIDMalformed:   "The specified instance ID is malformed. Ensure that you provide the full instance ID in the request, in the form i-xxxxxxxx or i-xxxxxxxxxxxxxxxxx.",
	ErrorInvalidInstanceIDNotFound:    "The specified instance does not exist. This error might occur because the ID of a recently created instance has not propagated through the system. For more information, see Ensuring idempotency.",
	ErrorInvalidParameterValue:        "A value specified in a parameter is not valid, is unsupported, or cannot be used. Ensure that you specify a resource by using its full ID. The returned message provides an explanation of the error value.",
	ErrorMissingParameter:             "The request is missing a required parameter. Ensure that you have supplied all the required parameters for the request; for example, the resource ID.",
	ErrorRequestLimitExceeded:         "The maximum request rate permitted by the Amazon EC2 APIs has been exceeded for your account. For best results, use an increasing or variable sleep interval between requests. For more information, see Query API request rate.",
	ErrorServerInternal:               "An internal error has occurred. Retry your request, but if the problem persists, contact us with details by posting a message on AWS re:Post.",
	ErrorUnauthorizedOperation:        "You are not authorized to perform this operation. Check your IAM policies, and ensure that you are using the correct credentials. For more information, see Identity and access management for Amazon EC2. If the returned message is encoded, you can decode it using the DecodeAuthorizationMessage action. For more information, see DecodeAuthorizationMessage in the AWS Security Token Service API Reference.",
	ErrorUnavailable:                  "The server is overloaded and can't handle the request.",
	ErrorUnsupportedOperation:         "The specified request includes an unsupported operation. For example, you can't stop an instance that's instance store-backed. Or you might be trying to launch an instance type that is not supported by the specified AMI. The returned message provides details of the unsupported operation.",
}
