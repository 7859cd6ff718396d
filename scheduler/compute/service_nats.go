package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mulgadc/ec2-scheduler/scheduler/awserrors"
	"github.com/mulgadc/ec2-scheduler/scheduler/utils"
	"github.com/nats-io/nats.go"
)

const (
	startSubject = "ec2.start"

	defaultStartTimeout = 30 * time.Second
	defaultStopTimeout  = 5 * time.Second
)

// startStoppedInstanceRequest is the payload sent to the ec2.start topic
type startStoppedInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// powerdownCommand is the QMP command envelope a Hive daemon accepts on
// ec2.cmd.<instance-id>.
type powerdownCommand struct {
	ID         string             `json:"id"`
	QMPCommand qmpCommand         `json:"command"`
	Attributes powerdownAttribute `json:"attributes"`
}

type qmpCommand struct {
	Execute   string         `json:"execute"`
	Arguments map[string]any `json:"arguments"`
}

type powerdownAttribute struct {
	StopInstance   bool `json:"stop_instance"`
	DeleteInstance bool `json:"delete_instance"`
}

// NATSInstanceService starts and stops instances on a Hive cluster by
// talking to its daemons over NATS.
type NATSInstanceService struct {
	natsConn     *nats.Conn
	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewNATSInstanceService creates a NATS-backed instance service. A zero
// timeout selects the daemon defaults.
func NewNATSInstanceService(conn *nats.Conn, timeout time.Duration) InstanceService {
	svc := &NATSInstanceService{
		natsConn:     conn,
		startTimeout: defaultStartTimeout,
		stopTimeout:  defaultStopTimeout,
	}
	if timeout > 0 {
		svc.startTimeout = timeout
		svc.stopTimeout = timeout
	}
	return svc
}

// StartInstances sends one request per instance to the ec2.start queue group.
// Any available daemon picks the request up. The first failure aborts the
// call and no records are returned.
func (s *NATSInstanceService) StartInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	records := make([]InstanceStateRecord, 0, len(instanceIDs))

	for _, instanceID := range instanceIDs {
		slog.Debug("StartInstances: Sending NATS request", "subject", startSubject, "instance_id", instanceID)

		_, err := utils.NATSRequest[json.RawMessage](ctx, s.natsConn, startSubject, startStoppedInstanceRequest{InstanceID: instanceID}, s.startTimeout)
		if err != nil {
			slog.Error("StartInstances: Request failed", "instance_id", instanceID, "err", err)
			return nil, daemonFailure("StartInstances", "", err)
		}

		records = append(records, newRecord(instanceID, StatePending, StateStopped))
	}

	return records, nil
}

// StopInstances sends a system_powerdown to each instance's command topic.
// stop_instance is left unset so the instance can be started again.
func (s *NATSInstanceService) StopInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	records := make([]InstanceStateRecord, 0, len(instanceIDs))

	for _, instanceID := range instanceIDs {
		command := powerdownCommand{
			ID: instanceID,
			QMPCommand: qmpCommand{
				Execute:   "system_powerdown",
				Arguments: map[string]any{},
			},
		}

		subject := fmt.Sprintf("ec2.cmd.%s", instanceID)
		slog.Debug("StopInstances: Sending NATS request", "subject", subject, "instance_id", instanceID)

		_, err := utils.NATSRequest[json.RawMessage](ctx, s.natsConn, subject, command, s.stopTimeout)
		if err != nil {
			slog.Error("StopInstances: Request failed", "instance_id", instanceID, "err", err)
			return nil, daemonFailure("StopInstances", instanceID, err)
		}

		records = append(records, newRecord(instanceID, StateStopping, StateRunning))
	}

	return records, nil
}

// daemonFailure maps a daemon error code or a transport failure to a
// ProviderError. instanceID is set when the subject was the instance's own
// command topic, where no responders means no daemon owns the instance.
func daemonFailure(operation, instanceID string, err error) error {
	var derr *utils.DaemonError
	if errors.As(err, &derr) {
		perr := awserrors.NewError(operation, derr.Code)
		perr.Err = err
		return perr
	}

	if instanceID != "" && errors.Is(err, nats.ErrNoResponders) {
		return &awserrors.ProviderError{
			Code:      awserrors.ErrorInvalidInstanceIDNotFound,
			Operation: operation,
			Message:   fmt.Sprintf("The instance ID '%s' does not exist", instanceID),
			Err:       err,
		}
	}

	return &awserrors.ProviderError{Operation: operation, Message: err.Error(), Err: err}
}
