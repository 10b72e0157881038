// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log debug output",
		},
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Your iCloud username or email address",
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "Your iCloud password (prompted for when omitted on a terminal)",
			Sources: cli.EnvVars("PHX_PASSWORD"),
		},
	}
}

// syncCommand downloads the library into a destination
func syncCommand(r *Runner) *cli.Command {
	flags := append(credentialFlags(),
		&cli.StringFlag{
			Name:  "photostation",
			Usage: "URL to your Photo Station webapi; <directory> then names the root album",
		},
		&cli.StringFlag{
			Name:  "size",
			Usage: "Image size to download: original, medium or thumb",
		},
		&cli.IntFlag{
			Name:  "recent",
			Usage: "Number of recent photos to download (default: download all photos)",
		},
		&cli.IntFlag{
			Name:  "until-found",
			Usage: "Stop after finding this many consecutive previously downloaded photos",
		},
		&cli.BoolFlag{
			Name:  "download-videos",
			Usage: "Download both videos and photos (default: only download photos)",
		},
		&cli.BoolFlag{
			Name:  "force-size",
			Usage: "Only download the requested size (default: fall back to original)",
		},
		&cli.BoolFlag{
			Name:  "auto-delete",
			Usage: "Delete local copies of anything in 'Recently Deleted'",
		},
		&cli.BoolFlag{
			Name:    "only-print-filenames",
			Aliases: []string{"dry-run"},
			Usage:   "Print the filenames that would be downloaded without downloading them",
		},
		&cli.BoolFlag{
			Name:  "keep-going",
			Usage: "Treat storage errors as per-item failures instead of stopping the run",
		},
		&cli.BoolFlag{
			Name:  "convert-heic",
			Usage: "Write a JPEG next to every downloaded HEIC file (filesystem only)",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Attempts per network operation before giving up",
		},
		&cli.IntFlag{
			Name:  "retry-wait",
			Usage: "Seconds to wait between attempts",
		},
		&cli.StringFlag{
			Name:  "smtp-host",
			Usage: "SMTP server for authentication-expiry alerts",
		},
		&cli.IntFlag{
			Name:  "smtp-port",
			Usage: "SMTP port",
		},
		&cli.StringFlag{
			Name:  "smtp-username",
			Usage: "SMTP username",
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.EnvVars("PHX_SMTP_PASSWORD"),
		},
		&cli.BoolFlag{
			Name:  "smtp-no-tls",
			Usage: "Do not upgrade the SMTP connection with STARTTLS",
		},
		&cli.StringFlag{
			Name:  "notification-email",
			Usage: "Where to send an alert when two-step verification is required",
		},
		&cli.StringFlag{
			Name:  "notification-email-from",
			Usage: "Sender address for alerts (default: the SMTP username)",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Print plain status lines instead of the progress view",
		},
	)

	return &cli.Command{
		Name:      "sync",
		Usage:     "Download all photos to a directory, s3://bucket/prefix or Photo Station album",
		ArgsUsage: "<directory>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "directory"},
		},
		Flags:  flags,
		Action: r.Sync,
	}
}

// authCommand signs in and stores the session
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Sign in to iCloud, completing two-step verification, and save the session",
		Flags:  credentialFlags(),
		Action: r.Auth,
	}
}

// historyCommand reads the run log
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded sync runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, csv or markdown",
				Value:   "text",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of runs to list (0 for all)",
				Value:   20,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show one run and the items it could not process",
				ArgsUsage: "<run-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryShow,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:      "config",
				Usage:     "Write the example configuration file",
				ArgsUsage: "[path]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path", Value: "config.toml"},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recently applied migration",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}
