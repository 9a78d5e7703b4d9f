package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendcollector",
		Short:         "Collect trending topics and manage a social content queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(trendsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(queueCmd())

	return root
}

func collectCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (e.g., google,reddit)")
	return cmd
}

func trendsCmd() *cobra.Command {
	var (
		jsonOutput bool
		nicheLabel string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show the most recently collected trends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrends(cmd.Context(), jsonOutput, nicheLabel, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&nicheLabel, "niche", "", "only show trends labelled with this niche")
	cmd.Flags().IntVar(&limit, "limit", 20, "max trends to show")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server without the periodic scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, false)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, true)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and update the content queue",
	}

	var (
		status     string
		limit      int
		jsonOutput bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List queued posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd.Context(), status, limit, jsonOutput)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (draft, ready, published)")
	list.Flags().IntVar(&limit, "limit", 0, "max items to show (0 shows all)")
	list.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	setStatus := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the status of a queued post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueStatus(cmd.Context(), args[0], args[1])
		},
	}

	publish := &cobra.Command{
		Use:   "publish <id>",
		Short: "Mark a post published and print its formatted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueuePublish(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, setStatus, publish)
	return cmd
}
