/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
	"github.com/mulgadc/ec2-scheduler/scheduler/handler"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function",
	Long: `Run under the AWS Lambda runtime. Each invocation event is handled once and
the {statusCode, body} envelope is returned as the function result. This is the
default when the binary starts inside Lambda without arguments.`,
	RunE: runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The client is built once per cold start and reused across invocations
	svc, closeFn, err := compute.New(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	slog.Info("Starting Lambda handler", "backend", cfg.Backend, "region", cfg.Region)

	lambda.Start(lambdaHandler(handler.New(svc, slog.Default())))
	return nil
}

// lambdaHandler adapts the handler to the Lambda runtime. Failures are
// reported inside the envelope, never as a function error.
func lambdaHandler(h *handler.Handler) func(context.Context, json.RawMessage) (handler.ActionResponse, error) {
	return func(ctx context.Context, event json.RawMessage) (handler.ActionResponse, error) {
		logger := slog.Default()
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			logger = logger.With("aws_request_id", lc.AwsRequestID)
		}

		return h.HandleEvent(handler.WithLogger(ctx, logger), event), nil
	}
}
