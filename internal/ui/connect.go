package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/reconlab/recon/internal/errors"
)

// ConnectValues carries the answers from the connect form.
type ConnectValues struct {
	Host     string
	User     string
	Password string
}

// ConnectForm prompts for connection details. defaults prefill the host and
// user fields, typically from the most recently active cached host.
func ConnectForm(defaults ConnectValues) (ConnectValues, error) {
	values := defaults
	values.Password = ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Remote host").
				Description("Hostname or IP of the access host").
				Placeholder("192.168.1.50").
				Value(&values.Host).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("host is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Username").
				Value(&values.User).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("username is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				Description("Leave empty to use your SSH key").
				EchoMode(huh.EchoModePassword).
				Value(&values.Password),
		),
	)

	if err := form.Run(); err != nil {
		return ConnectValues{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read connection details",
			"Pass --host and --user flags, or check terminal compatibility")
	}

	values.Host = strings.TrimSpace(values.Host)
	values.User = strings.TrimSpace(values.User)
	return values, nil
}

// Confirm asks a yes/no question.
func Confirm(title string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read confirmation", "")
	}
	return ok, nil
}
