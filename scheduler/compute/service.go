package compute

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// InstanceService defines the compute control plane operations the scheduler
// needs. Each call receives the full ID list and acts on it in one request.
type InstanceService interface {
	StartInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error)
	StopInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error)
}

// EC2 instance state codes
const (
	StatePending  int64 = 0
	StateRunning  int64 = 16
	StateStopping int64 = 64
	StateStopped  int64 = 80
)

var stateNames = map[int64]string{
	StatePending:  ec2.InstanceStateNamePending,
	StateRunning:  ec2.InstanceStateNameRunning,
	StateStopping: ec2.InstanceStateNameStopping,
	StateStopped:  ec2.InstanceStateNameStopped,
}

// InstanceState is a power state as reported by the provider.
type InstanceState struct {
	Code int64  `json:"Code"`
	Name string `json:"Name"`
}

// InstanceStateRecord describes an instance's previous and current state
// after a start or stop call. It encodes with the provider's field names.
type InstanceStateRecord struct {
	CurrentState  InstanceState `json:"CurrentState"`
	InstanceID    string        `json:"InstanceId"`
	PreviousState InstanceState `json:"PreviousState"`
}

func newRecord(instanceID string, currentCode, prevCode int64) InstanceStateRecord {
	return InstanceStateRecord{
		CurrentState:  InstanceState{Code: currentCode, Name: stateNames[currentCode]},
		InstanceID:    instanceID,
		PreviousState: InstanceState{Code: prevCode, Name: stateNames[prevCode]},
	}
}

// recordsFromStateChanges converts SDK state changes, dropping nil entries.
func recordsFromStateChanges(changes []*ec2.InstanceStateChange) []InstanceStateRecord {
	records := make([]InstanceStateRecord, 0, len(changes))
	for _, sc := range changes {
		if sc == nil {
			continue
		}
		records = append(records, InstanceStateRecord{
			CurrentState:  stateFromSDK(sc.CurrentState),
			InstanceID:    aws.StringValue(sc.InstanceId),
			PreviousState: stateFromSDK(sc.PreviousState),
		})
	}
	return records
}

func stateFromSDK(s *ec2.InstanceState) InstanceState {
	if s == nil {
		return InstanceState{}
	}
	return InstanceState{Code: aws.Int64Value(s.Code), Name: aws.StringValue(s.Name)}
}
