package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/phx/internal/services/icloud"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/ui"
	"github.com/urfave/cli/v3"
)

// Auth signs in, completes two-step verification and saves the session for later syncs.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	overrideString(cmd, "username", &r.config.ICloud.Username)
	overrideString(cmd, "password", &r.config.ICloud.Password)

	client, err := r.signIn(ctx)
	if err != nil {
		return err
	}
	if client.RequiresTwoStep() {
		if !ui.IsTerminal(r.input) {
			return fmt.Errorf("%w: verification needs an interactive terminal", shared.ErrTwoFactorRequired)
		}
		if err := r.verify(ctx, client, ui.NewPrompter(r.input, r.status)); err != nil {
			return err
		}
	}
	if err := client.Save(); err != nil {
		return err
	}

	r.logger.Info("session saved", "username", r.config.ICloud.Username)
	return r.writePlain("✓ Signed in as %s\n", r.config.ICloud.Username)
}

// signIn builds the iCloud client from configuration and logs in, prompting for missing
// credentials when stdin is a terminal.
func (r *Runner) signIn(ctx context.Context) (*icloud.Client, error) {
	cfg := &r.config.ICloud
	if ui.IsTerminal(r.input) && (cfg.Username == "" || cfg.Password == "") {
		prompt := ui.NewPrompter(r.input, r.status)
		var err error
		if cfg.Username == "" {
			if cfg.Username, err = prompt.Line("iCloud username/email: "); err != nil {
				return nil, err
			}
		}
		if cfg.Password == "" {
			if cfg.Password, err = prompt.Secret("iCloud password: "); err != nil {
				return nil, err
			}
		}
	}

	client, err := icloud.New(cfg.Username, cfg.Password,
		icloud.WithSessionDir(shared.ExpandHome(cfg.SessionDir)),
		icloud.WithRateLimit(cfg.RequestsPerSecond),
		icloud.WithLogger(shared.WithLogger(r.logger, "service", "icloud")),
	)
	if err != nil {
		return nil, err
	}

	r.writeStatus("Signing in...\n")
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// twoStepClient is the part of [icloud.Client] that drives verification.
type twoStepClient interface {
	TrustedDevices(ctx context.Context) ([]icloud.Device, error)
	SendVerificationCode(ctx context.Context, device icloud.Device) error
	ValidateVerificationCode(ctx context.Context, device icloud.Device, code string) error
}

// verify walks the user through two-step verification: pick a trusted device, receive a code, enter it.
func (r *Runner) verify(ctx context.Context, client twoStepClient, prompt *ui.Prompter) error {
	devices, err := client.TrustedDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no trusted devices", shared.ErrAuthFailed)
	}

	labels := make([]string, len(devices))
	for i, d := range devices {
		labels[i] = d.Label()
	}

	r.writeStatus("Two-step authentication required. Your trusted devices are:\n")
	i, err := prompt.Choose("Which device would you like to use? [0]: ", labels)
	if err != nil {
		return err
	}
	device := devices[i]

	if err := client.SendVerificationCode(ctx, device); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	code, err := prompt.Line("Please enter validation code: ")
	if err != nil {
		return err
	}
	if err := client.ValidateVerificationCode(ctx, device, code); err != nil {
		return fmt.Errorf("failed to verify verification code: %w", err)
	}

	r.logger.Debug("two-step verification complete", "device", device.Label())
	return nil
}
