package main

import (
	"os"

	"github.com/mulgadc/ec2-scheduler/cmd/ec2-scheduler/cmd"
)

func main() {
	// Inside the Lambda runtime the binary is invoked without arguments
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" && len(os.Args) == 1 {
		os.Args = append(os.Args, "lambda")
	}

	cmd.Execute()
}
