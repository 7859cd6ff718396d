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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
	"github.com/mulgadc/ec2-scheduler/scheduler/handler"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <instance-id>...",
	Short: "Start one or more instances",
	Long:  `Run a single start invocation against the configured backend and print the resulting state transitions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, handler.ActionStart, args)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <instance-id>...",
	Short: "Stop one or more instances",
	Long:  `Run a single stop invocation against the configured backend and print the resulting state transitions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, handler.ActionStop, args)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)

	for _, c := range []*cobra.Command{startCmd, stopCmd} {
		c.Flags().Bool("json", false, "Print the raw {statusCode, body} envelope")
	}
}

func runAction(cmd *cobra.Command, action handler.Action, ids []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, closeFn, err := compute.New(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handler.New(svc, slog.Default())
	resp := h.Handle(ctx, handler.ActionRequest{Action: action, InstanceIDs: ids})

	asJSON, _ := cmd.Flags().GetBool("json")
	if err := printResponse(cmd.OutOrStdout(), resp, asJSON); err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed with status %d", action, resp.StatusCode)
	}
	return nil
}

// printResponse renders resp either as the raw envelope or as a table of
// instance transitions.
func printResponse(w io.Writer, resp handler.ActionResponse, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	body, err := resp.Decode()
	if err != nil {
		return err
	}

	if body.Error != "" {
		pterm.Error.WithWriter(w).Printfln("%s (status %d)", body.Error, resp.StatusCode)
		return nil
	}

	pterm.Success.WithWriter(w).Println(body.Message)

	records := body.StartingInstances
	if len(records) == 0 {
		records = body.StoppingInstances
	}
	if len(records) == 0 {
		return nil
	}

	return pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithWriter(w).WithData(transitionTable(records)).Render()
}

func transitionTable(records []compute.InstanceStateRecord) pterm.TableData {
	tableData := pterm.TableData{
		{"INSTANCE ID", "PREVIOUS STATE", "CURRENT STATE", "CODE"},
	}
	for _, r := range records {
		tableData = append(tableData, []string{
			r.InstanceID,
			r.PreviousState.Name,
			r.CurrentState.Name,
			strconv.FormatInt(r.CurrentState.Code, 10),
		})
	}
	return tableData
}
