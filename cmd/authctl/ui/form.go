package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/redmonkez12/go-auth-service/internal/auth"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// AdminForm asks for the fields of a new admin account.
// Values already present in in are used as defaults.
func AdminForm(in auth.RegisterInput) (auth.RegisterInput, error) {
	var confirm string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&in.Name).
				Validate(ValidateName),

			huh.NewInput().
				Title("Last name").
				Value(&in.LastName).
				Validate(ValidateName),

			huh.NewInput().
				Title("Email").
				Placeholder("admin@example.com").
				Value(&in.Email).
				Validate(ValidateEmail),

			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&in.Password).
				Validate(ValidatePassword),

			huh.NewInput().
				Title("Repeat password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != in.Password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		return auth.RegisterInput{}, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	return in, nil
}

// Confirm shows a yes/no prompt and reports the answer
func Confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeCatppuccin()).Run()
	return ok, err
}

// ValidateName applies the registration rules for name and last name
func ValidateName(s string) error {
	return validation.Validate(strings.TrimSpace(s), validation.Required, validation.Length(1, 60))
}

func ValidateEmail(s string) error {
	return validation.Validate(strings.TrimSpace(s), validation.Required, is.Email)
}

func ValidatePassword(s string) error {
	return validation.Validate(s, validation.Required, validation.Length(4, 60))
}

// ValidateInput checks every field of in with the rules used by the form
func ValidateInput(in auth.RegisterInput) error {
	return validation.Errors{
		"name":     ValidateName(in.Name),
		"lastName": ValidateName(in.LastName),
		"email":    ValidateEmail(in.Email),
		"password": ValidatePassword(in.Password),
	}.Filter()
}

// PrintUser prints the account an operation produced
func PrintUser(title string, u *user.User) {
	fmt.Println(successStyle.Render(title))
	fmt.Println(labelStyle.Render("ID") + u.ID.String())
	fmt.Println(labelStyle.Render("Name") + u.Name + " " + u.LastName)
	fmt.Println(labelStyle.Render("Email") + u.Email)
	fmt.Println(labelStyle.Render("Role") + string(u.Role))
	fmt.Println()
}

// PrintTitle prints a section heading
func PrintTitle(msg string) {
	fmt.Println(titleStyle.Render(msg))
}

// PrintSuccess prints a one-line success message
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(errorStyle.Render("Error: " + msg))
}
