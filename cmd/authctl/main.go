package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tasks for the auth service",
		Long:          "Apply database migrations and manage admin accounts. Reads the same environment as the API server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified ADMIN account",
		Long:  "Create a verified ADMIN account. Without flags an interactive form is shown.",
		Args:  cobra.NoArgs,
		RunE:  runCreateAdmin,
	}

	// Flags for non-interactive mode (CI/scripting)
	createAdminCmd.Flags().String("name", "", "First name")
	createAdminCmd.Flags().String("last-name", "", "Last name")
	createAdminCmd.Flags().String("email", "", "Email address")
	createAdminCmd.Flags().String("password", "", "Password (prefer the interactive form)")

	promoteCmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Give an existing account the ADMIN role",
		Args:  cobra.ExactArgs(1),
		RunE:  runPromote,
	}
	promoteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	rootCmd.AddCommand(migrateCmd, createAdminCmd, promoteCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}
}
