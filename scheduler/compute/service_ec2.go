package compute

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/mulgadc/ec2-scheduler/scheduler/awserrors"
	"github.com/mulgadc/ec2-scheduler/scheduler/config"
)

// EC2InstanceService calls the EC2 API through the AWS SDK.
type EC2InstanceService struct {
	client ec2iface.EC2API
}

// NewEC2InstanceService wraps an EC2 API client.
func NewEC2InstanceService(client ec2iface.EC2API) InstanceService {
	return &EC2InstanceService{client: client}
}

// NewSession builds the AWS session shared by every invocation in the
// process. Unset credentials and region fall back to the SDK default chain
// and shared config.
func NewSession(cfg *config.Config) (*session.Session, error) {
	awsCfg := aws.Config{}

	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}

	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Self-signed endpoints such as a local Hive gateway
	if cfg.Insecure {
		tr := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		awsCfg.HTTPClient = &http.Client{Transport: tr}
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	slog.Debug("AWS session created", "region", aws.StringValue(sess.Config.Region), "endpoint", cfg.Endpoint)
	return sess, nil
}

func (s *EC2InstanceService) StartInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	out, err := s.client.StartInstancesWithContext(ctx, &ec2.StartInstancesInput{
		InstanceIds: aws.StringSlice(instanceIDs),
	})
	if err != nil {
		return nil, awserrors.FromAWS("StartInstances", err)
	}

	slog.Debug("StartInstances: provider response", "response", out.String())
	return recordsFromStateChanges(out.StartingInstances), nil
}

func (s *EC2InstanceService) StopInstances(ctx context.Context, instanceIDs []string) ([]InstanceStateRecord, error) {
	out, err := s.client.StopInstancesWithContext(ctx, &ec2.StopInstancesInput{
		InstanceIds: aws.StringSlice(instanceIDs),
	})
	if err != nil {
		return nil, awserrors.FromAWS("StopInstances", err)
	}

	slog.Debug("StopInstances: provider response", "response", out.String())
	return recordsFromStateChanges(out.StoppingInstances), nil
}
