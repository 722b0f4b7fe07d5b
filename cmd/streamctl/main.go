package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"streamd/pkg/types"
)

var (
	serverURL    string
	pollInterval time.Duration
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "streamctl",
		Short:         "Command line client for the streamd API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("STREAMD_SERVER", "http://localhost:8080"), "streamd base URL")
	root.PersistentFlags().DurationVar(&pollInterval, "poll-interval", time.Second, "delay between chunk polls")

	root.AddCommand(newSubmitCmd(), newStatusCmd(), newFollowCmd(), newCancelCmd(),
		newSessionsCmd(), newDeleteCmd(), newCleanupCmd(), newStatsCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newSubmitCmd() *cobra.Command {
	var req types.GenerateRequest
	var follow bool
	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Submit a generation task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = args[0]
			c := newClient(serverURL)
			resp, err := c.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !follow {
				return printJSON(resp)
			}
			fmt.Fprintf(os.Stderr, "task %s (%s)\n", resp.TaskID, resp.Status)
			status, detail, err := c.Follow(cmd.Context(), resp.TaskID, 0, pollInterval, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Println()
			if status == types.StatusError {
				return fmt.Errorf("generation failed: %s", detail)
			}
			fmt.Fprintf(os.Stderr, "task %s %s\n", resp.TaskID, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "provider name (server default when empty)")
	cmd.Flags().StringVar(&req.Model, "model", "", "model identifier (provider default when empty)")
	cmd.Flags().Float64Var(&req.Temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&req.MaxTokens, "max-tokens", 0, "maximum tokens to generate")
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "owner/session identifier")
	cmd.Flags().BoolVar(&follow, "follow", false, "stream the response until the task finishes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newClient(serverURL).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(task)
		},
	}
}

func newFollowCmd() *cobra.Command {
	var fromID int
	cmd := &cobra.Command{
		Use:   "follow <task-id>",
		Short: "Stream a task's chunks until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(serverURL)
			status, detail, err := c.Follow(cmd.Context(), args[0], fromID, pollInterval, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Println()
			if status == types.StatusError {
				return fmt.Errorf("generation failed: %s", detail)
			}
			fmt.Fprintf(os.Stderr, "task %s %s\n", args[0], status)
			return nil
		},
	}
	cmd.Flags().IntVar(&fromID, "from", 0, "chunk offset to resume from")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Request cancellation of a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(serverURL).Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func newSessionsCmd() *cobra.Command {
	var hours float64
	cmd := &cobra.Command{
		Use:   "sessions <owner-id>",
		Short: "List an owner's recent tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(serverURL).Sessions(cmd.Context(), args[0], hours)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "recency window in hours (server default when 0)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <owner-id> <task-id>",
		Short: "Delete a task and its chunks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(serverURL).DeleteSession(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[1])
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var hours float64
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge stale tasks on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(serverURL).Cleanup(cmd.Context(), hours)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "staleness threshold in hours (server default when 0)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show server-wide task and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(serverURL).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
