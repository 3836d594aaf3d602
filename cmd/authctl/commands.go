package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/go-auth-service/cmd/authctl/ui"
	"github.com/redmonkez12/go-auth-service/internal/auth"
	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	if err := database.Migrate(cmd.Context(), env.db.DB); err != nil {
		return err
	}

	ui.PrintSuccess("Migrations applied")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	in, err := adminInputFromFlags(cmd)
	if err != nil {
		return err
	}

	// Interactive mode unless every field came from flags
	if in.Name == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		ui.PrintTitle("New admin account")
		in, err = ui.AdminForm(in)
		if err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}
	}

	if err := ui.ValidateInput(in); err != nil {
		return err
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	admin, err := env.service.CreateAdmin(cmd.Context(), in)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			return fmt.Errorf("an account with email %s already exists, use promote instead", in.Email)
		}
		return err
	}

	ui.PrintUser("Admin created", admin)
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	emailAddr := args[0]
	yes, _ := cmd.Flags().GetBool("yes")

	if err := ui.ValidateEmail(emailAddr); err != nil {
		return fmt.Errorf("email: %w", err)
	}

	if !yes {
		ok, err := ui.Confirm(fmt.Sprintf("Give %s the ADMIN role?", emailAddr))
		if err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	promoted, err := env.service.SetRole(cmd.Context(), emailAddr, user.RoleAdmin)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("no account with email %s", emailAddr)
		}
		return err
	}

	ui.PrintUser("Account promoted", promoted)
	return nil
}

func adminInputFromFlags(cmd *cobra.Command) (auth.RegisterInput, error) {
	var (
		in   auth.RegisterInput
		errs []error
	)
	for flag, dst := range map[string]*string{
		"name":      &in.Name,
		"last-name": &in.LastName,
		"email":     &in.Email,
		"password":  &in.Password,
	} {
		v, err := cmd.Flags().GetString(flag)
		errs = append(errs, err)
		*dst = v
	}
	return in, errors.Join(errs...)
}

func printError(err error) {
	ui.PrintError(err.Error())
}
