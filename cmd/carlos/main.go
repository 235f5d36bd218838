// Package main provides the carlos CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/carlos/cli"
)

var (
	// Global flags
	user    string
	verbose bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "carlos",
		Short: "A conversational agent with long-term memory",
		Long: `Carlos answers each message through a bounded retrieval/reasoning loop over
a persistent memory store, while background shards mine that store for
patterns and queue proactive messages for future turns.`,
	}

	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "default", "User the agent remembers things for")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(resetDBCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), cli.Options{User: user, Verbose: verbose})
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the streaming chat endpoint over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(context.Background(), cli.Options{User: user, Verbose: verbose})
		},
	}
}

func resetDBCmd() *cobra.Command {
	var force, seed bool
	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Clear all stored memory for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ResetDB(context.Background(), user, force, seed)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&seed, "seed", false, "Insert sample data after the reset")
	return cmd
}
