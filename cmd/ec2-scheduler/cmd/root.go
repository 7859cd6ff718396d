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
	"fmt"
	"log/slog"
	"os"

	"github.com/mulgadc/ec2-scheduler/scheduler/config"
	"github.com/mulgadc/ec2-scheduler/scheduler/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig *config.Config
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ec2-scheduler",
	Short: "EC2 Scheduler - start and stop EC2 instances on demand",
	Long: `EC2 Scheduler starts or stops a list of EC2 instances per invocation.
It runs as an AWS Lambda function, an HTTP/NATS service, or a one-shot CLI,
and can be configured via config file, environment variables, or command line flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML)")
	viper.BindEnv("config", "SCHEDULER_CONFIG_PATH")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("backend", "", "Compute backend: ec2, nats or mock (overrides config file and env)")
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))

	rootCmd.PersistentFlags().String("region", "", "AWS region (overrides config file and env)")
	viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))

	rootCmd.PersistentFlags().String("endpoint", "", "EC2 endpoint, e.g. a Hive gateway (overrides config file and env)")
	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))

	// Authentication (access_key, secret)
	rootCmd.PersistentFlags().String("access-key", "", "AWS access key (overrides config file and env)")
	viper.BindPFlag("accesskey", rootCmd.PersistentFlags().Lookup("access-key"))

	rootCmd.PersistentFlags().String("secret-key", "", "AWS secret key (overrides config file and env)")
	viper.BindPFlag("secretkey", rootCmd.PersistentFlags().Lookup("secret-key"))

	// NATS specific flags
	rootCmd.PersistentFlags().String("nats-host", "", "NATS server host (overrides config file and env)")
	viper.BindPFlag("nats.host", rootCmd.PersistentFlags().Lookup("nats-host"))

	rootCmd.PersistentFlags().String("nats-token", "", "NATS authentication token (overrides config file and env)")
	viper.BindPFlag("nats.acl.token", rootCmd.PersistentFlags().Lookup("nats-token"))

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}

	appConfig, configErr = config.LoadConfig(cfgFile)
	if configErr != nil {
		utils.SetupLogger(os.Stderr, slog.LevelInfo)
		return
	}

	level, _ := config.ParseLogLevel(appConfig.LogLevel)
	utils.SetupLogger(os.Stderr, level)
}

// loadConfig returns the configuration resolved by initConfig.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, fmt.Errorf("failed to load config: %w", configErr)
	}
	return appConfig, nil
}
