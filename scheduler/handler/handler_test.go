package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mulgadc/ec2-scheduler/scheduler/awserrors"
	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
	"github.com/mulgadc/ec2-scheduler/scheduler/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstanceService records calls and returns canned results.
type fakeInstanceService struct {
	startCalls [][]string
	stopCalls  [][]string
	err        error
	panicWith  any
}

func (f *fakeInstanceService) StartInstances(ctx context.Context, ids []string) ([]compute.InstanceStateRecord, error) {
	f.startCalls = append(f.startCalls, ids)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	return compute.NewMockInstanceService().StartInstances(ctx, ids)
}

func (f *fakeInstanceService) StopInstances(ctx context.Context, ids []string) ([]compute.InstanceStateRecord, error) {
	f.stopCalls = append(f.stopCalls, ids)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	return compute.NewMockInstanceService().StopInstances(ctx, ids)
}

func newTestHandler(svc compute.InstanceService) (*Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(svc, logger), &buf
}

func decodeBody(t *testing.T, resp ActionResponse) ResponseBody {
	t.Helper()
	body, err := resp.Decode()
	require.NoError(t, err)
	return body
}

func TestHandle_InvalidAction(t *testing.T) {
	tests := []struct {
		name string
		req  ActionRequest
	}{
		{name: "missing", req: ActionRequest{InstanceIDs: []string{"i-111"}}},
		{name: "unknown", req: ActionRequest{Action: "reboot", InstanceIDs: []string{"i-111"}}},
		{name: "wrong case", req: ActionRequest{Action: "START", InstanceIDs: []string{"i-111"}}},
		{name: "missing action and ids", req: ActionRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeInstanceService{}
			h, _ := newTestHandler(svc)

			resp := h.Handle(context.Background(), tt.req)

			assert.Equal(t, 400, resp.StatusCode)
			assert.Equal(t, `{"error":"Invalid action. Must be \"start\" or \"stop\"."}`, resp.Body)
			assert.Empty(t, svc.startCalls)
			assert.Empty(t, svc.stopCalls)
		})
	}
}

func TestHandle_NoInstanceIDs(t *testing.T) {
	for _, action := range []Action{ActionStart, ActionStop} {
		for name, ids := range map[string][]string{"missing": nil, "empty": {}} {
			t.Run(fmt.Sprintf("%s/%s", action, name), func(t *testing.T) {
				svc := &fakeInstanceService{}
				h, _ := newTestHandler(svc)

				resp := h.Handle(context.Background(), ActionRequest{Action: action, InstanceIDs: ids})

				assert.Equal(t, 400, resp.StatusCode)
				body := decodeBody(t, resp)
				assert.Equal(t, ErrNoInstanceIDs, body.Error)
				assert.Empty(t, body.Message)
				assert.Empty(t, svc.startCalls)
				assert.Empty(t, svc.stopCalls)
			})
		}
	}
}

func TestHandle_StartSuccess(t *testing.T) {
	svc := &fakeInstanceService{}
	h, logs := newTestHandler(svc)

	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStart, InstanceIDs: []string{"i-111", "i-222"}})

	require.Equal(t, 200, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Successfully started instances: ['i-111', 'i-222']", body.Message)
	assert.Contains(t, body.Message, "i-111")
	assert.Contains(t, body.Message, "i-222")
	require.Len(t, body.StartingInstances, 2)
	assert.Nil(t, body.StoppingInstances)
	assert.Empty(t, body.Error)

	assert.Equal(t, "i-111", body.StartingInstances[0].InstanceID)
	assert.Equal(t, "pending", body.StartingInstances[0].CurrentState.Name)
	assert.Equal(t, int64(80), body.StartingInstances[0].PreviousState.Code)

	require.Len(t, svc.startCalls, 1)
	assert.Equal(t, []string{"i-111", "i-222"}, svc.startCalls[0])
	assert.Empty(t, svc.stopCalls)

	assert.Contains(t, logs.String(), `"action":"start"`)
	assert.Contains(t, logs.String(), `"instance_ids":["i-111","i-222"]`)
}

func TestHandle_StopSuccess(t *testing.T) {
	svc := &fakeInstanceService{}
	h, _ := newTestHandler(svc)

	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStop, InstanceIDs: []string{"i-333"}})

	require.Equal(t, 200, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Successfully stopped instances: ['i-333']", body.Message)
	require.Len(t, body.StoppingInstances, 1)
	assert.Nil(t, body.StartingInstances)
	assert.Equal(t, "stopping", body.StoppingInstances[0].CurrentState.Name)
	assert.Equal(t, "running", body.StoppingInstances[0].PreviousState.Name)

	require.Len(t, svc.stopCalls, 1)
	assert.Empty(t, svc.startCalls)
}

func TestHandle_WireFormat(t *testing.T) {
	h, _ := newTestHandler(&fakeInstanceService{})

	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStop, InstanceIDs: []string{"i-333"}})

	assert.Equal(t,
		`{"message":"Successfully stopped instances: ['i-333']","stopping_instances":[{"CurrentState":{"Code":64,"Name":"stopping"},"InstanceId":"i-333","PreviousState":{"Code":16,"Name":"running"}}]}`,
		resp.Body)

	envelope, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(envelope, &decoded))
	assert.Equal(t, float64(200), decoded["statusCode"])
	assert.IsType(t, "", decoded["body"])
}

func TestHandle_PreservesOrderAndDuplicates(t *testing.T) {
	svc := &fakeInstanceService{}
	h, _ := newTestHandler(svc)

	ids := []string{"i-b", "i-a", "i-b"}
	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStart, InstanceIDs: ids})

	require.Equal(t, 200, resp.StatusCode)
	require.Len(t, svc.startCalls, 1)
	assert.Equal(t, ids, svc.startCalls[0])
	assert.Equal(t, "Successfully started instances: ['i-b', 'i-a', 'i-b']", decodeBody(t, resp).Message)
}

type emptyInstanceService struct{}

func (emptyInstanceService) StartInstances(context.Context, []string) ([]compute.InstanceStateRecord, error) {
	return nil, nil
}

func (emptyInstanceService) StopInstances(context.Context, []string) ([]compute.InstanceStateRecord, error) {
	return nil, nil
}

func TestHandle_EmptyProviderResult(t *testing.T) {
	h, _ := newTestHandler(emptyInstanceService{})

	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStart, InstanceIDs: []string{"i-111"}})

	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Body, `"starting_instances":[]`)
}

func TestHandle_ProviderError(t *testing.T) {
	providerErr := &awserrors.ProviderError{
		Code:      awserrors.ErrorInvalidInstanceIDNotFound,
		Operation: "StartInstances",
		Message:   "The instance ID 'i-missing' does not exist",
	}

	tests := []struct {
		name    string
		action  Action
		ids     []string
		err     error
		wantMsg string
	}{
		{
			name:    "start provider error",
			action:  ActionStart,
			ids:     []string{"i-missing"},
			err:     providerErr,
			wantMsg: providerErr.Error(),
		},
		{
			name:    "stop wrapped provider error",
			action:  ActionStop,
			ids:     []string{"i-1", "i-2", "i-3"},
			err:     fmt.Errorf("calling provider: %w", providerErr),
			wantMsg: providerErr.Error(),
		},
		{
			name:    "plain error",
			action:  ActionStop,
			ids:     []string{"i-1"},
			err:     errors.New("connection reset by peer"),
			wantMsg: "connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, logs := newTestHandler(&fakeInstanceService{err: tt.err})

			resp := h.Handle(context.Background(), ActionRequest{Action: tt.action, InstanceIDs: tt.ids})

			assert.Equal(t, 500, resp.StatusCode)
			body := decodeBody(t, resp)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.Empty(t, body.Message)
			assert.Nil(t, body.StartingInstances)
			assert.Nil(t, body.StoppingInstances)
			assert.Contains(t, logs.String(), "Instance action failed")
		})
	}
}

func TestHandle_ProviderPanicRecovered(t *testing.T) {
	h, _ := newTestHandler(&fakeInstanceService{panicWith: "nil session"})

	resp := h.Handle(context.Background(), ActionRequest{Action: ActionStart, InstanceIDs: []string{"i-111"}})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "nil session", decodeBody(t, resp).Error)
}

func TestHandle_Repeatable(t *testing.T) {
	h, _ := newTestHandler(&fakeInstanceService{})
	req := ActionRequest{Action: ActionStart, InstanceIDs: []string{"i-111", "i-222"}}

	first := h.Handle(context.Background(), req)
	second := h.Handle(context.Background(), req)

	assert.Equal(t, first, second)
}

func TestHandle_ContextLogger(t *testing.T) {
	h, handlerLogs := newTestHandler(&fakeInstanceService{})

	var buf bytes.Buffer
	reqLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", "req-123")
	ctx := WithLogger(context.Background(), reqLogger)

	h.Handle(ctx, ActionRequest{Action: ActionStop, InstanceIDs: []string{"i-333"}})

	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), "Processing instance action")
	assert.Empty(t, handlerLogs.String())
}

func TestHandle_Metrics(t *testing.T) {
	h, _ := newTestHandler(&fakeInstanceService{})

	okBefore := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues("stop", "200"))
	badBefore := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues("invalid", "400"))
	instancesBefore := testutil.ToFloat64(metrics.InstanceCount.WithLabelValues("stop"))

	h.Handle(context.Background(), ActionRequest{Action: ActionStop, InstanceIDs: []string{"i-1", "i-2"}})
	h.Handle(context.Background(), ActionRequest{Action: "pause"})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.InvocationCount.WithLabelValues("stop", "200")))
	assert.Equal(t, badBefore+1, testutil.ToFloat64(metrics.InvocationCount.WithLabelValues("invalid", "400")))
	assert.Equal(t, instancesBefore+2, testutil.ToFloat64(metrics.InstanceCount.WithLabelValues("stop")))
}

func TestHandleEvent(t *testing.T) {
	h, _ := newTestHandler(&fakeInstanceService{})

	resp := h.HandleEvent(context.Background(), []byte(`{"action":"start","instance_ids":["i-111","i-222"]}`))
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp).StartingInstances, 2)

	resp = h.HandleEvent(context.Background(), []byte(`{"instance_ids":["i-111"]}`))
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, ErrInvalidAction, decodeBody(t, resp).Error)
}

func TestHandleEvent_KeysMatchExactly(t *testing.T) {
	svc := &fakeInstanceService{}
	h, _ := newTestHandler(svc)

	resp := h.HandleEvent(context.Background(), []byte(`{"action":"stop","Action":"start","instance_ids":["i-1"]}`))
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp).StoppingInstances, 1)
	assert.Equal(t, [][]string{{"i-1"}}, svc.stopCalls)
	assert.Empty(t, svc.startCalls)

	resp = h.HandleEvent(context.Background(), []byte(`{"ACTION":"start","Instance_IDs":["i-1"]}`))
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, ErrInvalidAction, decodeBody(t, resp).Error)
	assert.Empty(t, svc.startCalls)
}
