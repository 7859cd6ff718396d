package compute

import "context"

// MockInstanceService reports every instance as transitioning without
// contacting a provider.
type MockInstanceService struct{}

// NewMockInstanceService creates a new mock instance service
func NewMockInstanceService() InstanceService {
	return &MockInstanceService{}
}

func (s *MockInstanceService) StartInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	records := make([]InstanceStateRecord, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		records = append(records, newRecord(id, StatePending, StateStopped))
	}
	return records, nil
}

func (s *MockInstanceService) StopInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	records := make([]InstanceStateRecord, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		records = append(records, newRecord(id, StateStopping, StateRunning))
	}
	return records, nil
}
