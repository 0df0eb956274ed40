// Command remindctl is the command-line client for a remindd server.
//
// Usage:
//
//	remindctl add standup --at 2030-01-01T12:00:00Z
//	remindctl add coffee --in 25m
//	remindctl list --status FIRED
//	remindctl listen
//	remindctl health
//
// The server address comes from --server or the REMINDD_ADDR environment
// variable (default http://localhost:8080).
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sneh-joshi/remindd/pkg/client"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "remindctl: %v\n", err)
		os.Exit(1)
	}
}

// newRoot constructs the root Cobra command and registers all subcommands.
func newRoot() *cobra.Command {
	var (
		server string
		apiKey string
	)

	root := &cobra.Command{
		Use:           "remindctl",
		Short:         "Client for the remindd reminder scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("REMINDD_ADDR")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&server, "server", defaultServer, "remindd server base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("REMINDD_AUTH_API_KEY"), "API key (when auth is enabled)")

	newClient := func() *client.Client {
		var opts []client.ClientOption
		if apiKey != "" {
			opts = append(opts, client.WithAPIKey(apiKey))
		}
		return client.New(server, opts...)
	}

	root.AddCommand(
		newAddCommand(newClient),
		newListCommand(newClient),
		newListenCommand(newClient),
		newHealthCommand(newClient),
	)
	return root
}

// newAddCommand constructs the `add` subcommand.
func newAddCommand(newClient func() *client.Client) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a reminder (idempotent by name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			atStr, _ := cmd.Flags().GetString("at")
			in, _ := cmd.Flags().GetDuration("in")

			var at time.Time
			switch {
			case atStr != "" && in != 0:
				return fmt.Errorf("use either --at or --in, not both")
			case atStr != "":
				t, err := time.Parse(time.RFC3339, atStr)
				if err != nil {
					return fmt.Errorf("invalid --at; expected RFC3339: %w", err)
				}
				at = t
			case in != 0:
				at = time.Now().Add(in)
			default:
				return fmt.Errorf("one of --at or --in is required")
			}

			rem, created, err := newClient().Add(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s firing at %s (id %s)\n",
					rem.Name, rem.AtTime().Format(time.RFC3339), rem.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "already pending: %s fires at %s (id %s)\n",
					rem.Name, rem.AtTime().Format(time.RFC3339), rem.ID)
			}
			return nil
		},
	}
	addCmd.Flags().String("at", "", "absolute fire time (RFC3339)")
	addCmd.Flags().Duration("in", 0, "relative fire time (e.g. 25m, 2h)")
	return addCmd
}

// newListCommand constructs the `list` subcommand.
func newListCommand(newClient func() *client.Client) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			rems, err := newClient().List(cmd.Context(), status)
			if err != nil {
				return err
			}
			if len(rems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminders")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAT\tSTATUS")
			for _, r := range rems {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.ID, r.Name, r.AtTime().Format(time.RFC3339), r.Status)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().String("status", "PENDING", "filter by status (PENDING or FIRED)")
	return listCmd
}

// newListenCommand constructs the `listen` subcommand, which streams fired
// reminders over the WebSocket gateway until interrupted.
func newListenCommand(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stream fired reminders as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub, err := newClient().Subscribe(cmd.Context())
			if err != nil {
				return err
			}
			defer sub.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "listening for fired reminders (ctrl-c to stop)")
			for ev := range sub.Events() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (scheduled %s, id %s)\n",
					ev.FiredAt, ev.Name, ev.At, ev.ID)
			}
			return sub.Err()
		},
	}
}

// newHealthCommand constructs the `health` subcommand.
func newHealthCommand(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nodeID, err := newClient().Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok (node %s)\n", nodeID)
			return nil
		},
	}
}
