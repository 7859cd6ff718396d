package compute

import (
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/mulgadc/ec2-scheduler/scheduler/config"
	"github.com/mulgadc/ec2-scheduler/scheduler/utils"
	"github.com/nats-io/nats.go"
)

// New builds the instance service selected by cfg.Backend. The returned
// close func releases any connection the backend holds and is never nil.
func New(cfg *config.Config) (InstanceService, func(), error) {
	return NewWithConn(cfg, nil)
}

// NewWithConn is New with an existing NATS connection for the nats backend.
// A nil nc dials cfg.NATS.Host. The caller keeps ownership of a passed nc,
// so the returned close func does not close it.
func NewWithConn(cfg *config.Config, nc *nats.Conn) (InstanceService, func(), error) {
	switch cfg.Backend {
	case config.BackendEC2, "":
		sess, err := NewSession(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewEC2InstanceService(ec2.New(sess)), func() {}, nil

	case config.BackendNATS:
		if nc != nil {
			return NewNATSInstanceService(nc, cfg.NATS.Timeout), func() {}, nil
		}

		nc, err := utils.ConnectNATS(cfg.NATS.Host, cfg.NATS.ACL.Token)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to Hive NATS", "url", nc.ConnectedUrl())
		return NewNATSInstanceService(nc, cfg.NATS.Timeout), nc.Close, nil

	case config.BackendMock:
		return NewMockInstanceService(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
