// Command swarmctl is a thin HTTP client for the engine's Library API
// (spec.md §6), talking to a running cmd/server instance over REST.
//
// Grounded on the teacher-adjacent anasdox-workline/cmd/wl/main.go: a
// cobra root command with a persistent --server flag (its analogue of
// wl's --workspace), one subcommand per resource, table output via
// go-pretty/table unless --json is set.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Control a running agent-orchestrator engine",
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SWARMCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "engine server base URL")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON instead of a table")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(flowCmd())
	rootCmd.AddCommand(resultCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(modeCmd())
}

func submitCmd() *cobra.Command {
	var outputType string
	cmd := &cobra.Command{
		Use:   "submit [content]",
		Short: "Submit a task and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"content": args[0]}
			if outputType != "" {
				body["output_type"] = outputType
			}
			var resp map[string]string
			if err := doJSON(http.MethodPost, "/tasks/", body, &resp); err != nil {
				return err
			}
			fmt.Println(resp["id"])
			return nil
		},
	}
	cmd.Flags().StringVar(&outputType, "output-type", "", "desired output type (report, code, image, ...)")
	return cmd
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress [task-id]",
		Short: "Show a task's DAG progress tally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var progress map[string]any
			if err := doJSON(http.MethodGet, "/tasks/"+args[0]+"/", nil, &progress); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(progress)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Total", "Pending", "Running", "Completed", "Failed", "Skipped", "Percent"})
			tw.AppendRow(table.Row{progress["total"], progress["pending"], progress["running"], progress["completed"], progress["failed"], progress["skipped"], progress["percent"]})
			tw.Render()
			return nil
		},
	}
}

func flowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flow [task-id]",
		Short: "Show a task's step DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var steps []map[string]any
			if err := doJSON(http.MethodGet, "/tasks/"+args[0]+"/flow", nil, &steps); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(steps)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Role", "Status", "Retries"})
			for _, s := range steps {
				tw.AppendRow(table.Row{s["id"], s["name"], s["role"], s["status"], s["retry_count"]})
			}
			tw.Render()
			return nil
		},
	}
}

func resultCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "result [task-id]",
		Short: "Fetch a task's final result, optionally waiting for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/tasks/" + args[0] + "/result"
			deadline := time.Now().Add(5 * time.Minute)
			for {
				status, body, err := doRequest(http.MethodGet, path, nil)
				if err != nil {
					return err
				}
				if status == http.StatusOK {
					var result map[string]any
					if err := json.Unmarshal(body, &result); err != nil {
						return err
					}
					return printJSON(result)
				}
				if !wait || time.Now().After(deadline) {
					fmt.Println("task not finished yet")
					return nil
				}
				time.Sleep(500 * time.Millisecond)
			}
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task reaches a terminal state")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [task-id]",
		Short: "Cancel an in-flight task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := doRequest(http.MethodPost, "/tasks/"+args[0]+"/cancel", nil)
			return err
		},
	}
}

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tools", Short: "Inspect the Tool Registry"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every registered tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if err := doJSON(http.MethodGet, "/tools/", nil, &names); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(names)
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	})
	return cmd
}

func modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [team|scheduler]",
		Short: "Switch execution mode (spec.md §6)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := doRequest(http.MethodPost, "/mode", map[string]any{"mode": args[0]})
			return err
		},
	}
}

func doJSON(method, path string, body any, out any) error {
	status, respBody, err := doRequest(method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("server returned %d: %s", status, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func doRequest(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, viper.GetString("server")+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
