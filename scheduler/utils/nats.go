package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/nats-io/nats.go"
)

// ErrResponseError is returned by ValidateErrorPayload when the payload is an
// ec2.ResponseError carrying a code.
var ErrResponseError = errors.New("ResponseError detected")

// DaemonError is an error code a daemon replied with in place of a result.
type DaemonError struct {
	Code string
}

func (e *DaemonError) Error() string {
	return e.Code
}

// ConnectNATS connects to a NATS server, authenticating with token when set.
func ConnectNATS(host, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("ec2-scheduler"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", host, err)
	}

	return nc, nil
}

// NATSRequest performs a NATS request-response with JSON marshaling.
// It marshals the input, sends to the given subject, validates the response
// for error payloads, and unmarshals the successful response into Out.
// The request is bounded by timeout and by ctx, whichever ends first.
func NATSRequest[Out any](ctx context.Context, conn *nats.Conn, subject string, input any, timeout time.Duration) (*Out, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := conn.RequestWithContext(ctx, subject, jsonData)
	if err != nil {
		return nil, fmt.Errorf("NATS request failed: %w", err)
	}

	responseError, err := ValidateErrorPayload(msg.Data)
	if err != nil {
		return nil, &DaemonError{Code: aws.StringValue(responseError.Code)}
	}

	var output Out
	if err := json.Unmarshal(msg.Data, &output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &output, nil
}

// GenerateErrorPayload builds the JSON error reply Hive daemons send over NATS.
func GenerateErrorPayload(code string) []byte {
	var responseError ec2.ResponseError
	responseError.Code = aws.String(code)

	jsonResponse, err := json.Marshal(responseError)
	if err != nil {
		slog.Error("GenerateErrorPayload could not marshal JSON payload", "err", err)
		return nil
	}

	return jsonResponse
}

// ValidateErrorPayload reports ErrResponseError when payload decodes strictly
// as an ec2.ResponseError with a non-nil Code.
func ValidateErrorPayload(payload []byte) (responseError ec2.ResponseError, err error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()

	err = decoder.Decode(&responseError)

	if err == nil && responseError.Code != nil {
		return responseError, ErrResponseError
	}

	// Not an error structure, or an empty valid response
	return responseError, nil
}
