package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mulgadc/ec2-scheduler/scheduler/awserrors"
	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
	"github.com/mulgadc/ec2-scheduler/scheduler/metrics"
)

// Handler starts or stops instances through a compute InstanceService and
// returns a normalised ActionResponse. It holds no per-invocation state and
// is safe for concurrent use when the service is.
type Handler struct {
	compute compute.InstanceService
	logger  *slog.Logger
}

// New creates a Handler. A nil logger uses slog.Default.
func New(svc compute.InstanceService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{compute: svc, logger: logger}
}

type loggerKey struct{}

// WithLogger attaches an invocation-scoped logger, e.g. one carrying a
// request ID, that Handle uses in place of the handler's own.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func (h *Handler) loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return h.logger
}

// HandleEvent decodes a raw event payload and handles it.
func (h *Handler) HandleEvent(ctx context.Context, payload []byte) ActionResponse {
	return h.Handle(ctx, ParseRequest(payload))
}

// Handle validates req, dispatches it to the compute service and wraps the
// outcome. It always returns a well-formed response.
func (h *Handler) Handle(ctx context.Context, req ActionRequest) ActionResponse {
	logger := h.loggerFrom(ctx)

	if !req.Action.Valid() {
		return h.respond(logger, "invalid", errorResponse(http.StatusBadRequest, ErrInvalidAction))
	}

	if len(req.InstanceIDs) == 0 {
		return h.respond(logger, string(req.Action), errorResponse(http.StatusBadRequest, ErrNoInstanceIDs))
	}

	logger.Info("Processing instance action", "action", req.Action, "instance_ids", req.InstanceIDs)

	records, err := h.dispatch(ctx, req.Action, req.InstanceIDs)
	if err != nil {
		msg := errorMessage(err)
		logger.Error("Instance action failed", "action", req.Action, "err", msg)
		return h.respond(logger, string(req.Action), errorResponse(http.StatusInternalServerError, msg))
	}

	if records == nil {
		records = []compute.InstanceStateRecord{}
	}

	logger.Info("Instance action completed", "action", req.Action, "affected_instances", len(records))
	metrics.InstanceCount.WithLabelValues(string(req.Action)).Add(float64(len(records)))

	var body any
	switch req.Action {
	case ActionStart:
		body = startedBody{
			Message:           "Successfully started instances: " + formatInstanceIDs(req.InstanceIDs),
			StartingInstances: records,
		}
	case ActionStop:
		body = stoppedBody{
			Message:           "Successfully stopped instances: " + formatInstanceIDs(req.InstanceIDs),
			StoppingInstances: records,
		}
	}

	return h.respond(logger, string(req.Action), encode(http.StatusOK, body))
}

// dispatch calls the service for action. A panic in the service is reported
// as an error so the caller still receives a response.
func (h *Handler) dispatch(ctx context.Context, action Action, ids []string) (records []compute.InstanceStateRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	switch action {
	case ActionStart:
		return h.compute.StartInstances(ctx, ids)
	case ActionStop:
		return h.compute.StopInstances(ctx, ids)
	}
	return nil, fmt.Errorf("unsupported action %q", action)
}

func (h *Handler) respond(logger *slog.Logger, action string, resp ActionResponse) ActionResponse {
	metrics.InvocationCount.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode == http.StatusBadRequest {
		logger.Warn("Rejected invocation", "action", action, "body", resp.Body)
	}
	return resp
}

// errorMessage prefers the provider's own rendering over any wrapping.
func errorMessage(err error) string {
	var perr *awserrors.ProviderError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}

func errorResponse(status int, msg string) ActionResponse {
	return encode(status, errorBody{Error: msg})
}

func encode(status int, body any) ActionResponse {
	data, err := json.Marshal(body)
	if err != nil {
		data, _ = json.Marshal(errorBody{Error: err.Error()})
		status = http.StatusInternalServerError
	}
	return ActionResponse{StatusCode: status, Body: string(data)}
}
