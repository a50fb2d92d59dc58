package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kriansa/pam-mount-users/internal/config"
	"github.com/kriansa/pam-mount-users/internal/log"
	"github.com/kriansa/pam-mount-users/internal/procmounts"
	"github.com/kriansa/pam-mount-users/internal/version"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "pam-mount-users",
		Usage:  "Manage per-volume user whitelists in pam_mount.conf.xml",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "pam_mount configuration file to edit",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format for list: text, json or yaml",
			},
			&cli.BoolFlag{
				Name:  "no-backup",
				Usage: "Do not keep a .bak copy of the previous file when saving",
			},
			&cli.StringFlag{
				Name:   "mount-table",
				Usage:  "Mount table used to report mount status",
				Value:  procmounts.DefaultPath,
				Hidden: true,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Fprintln(cmd.Root().Writer, version.String())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			listCommand(),
			addUserCommand(),
			removeUserCommand(),
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintln(cmd.Root().Writer, version.String())
					return nil
				},
			},
		},
	}
}

// loadConfig sets up logging and resolves the effective configuration
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	log.Setup(cmd.Bool("verbose"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Merge CLI flags (CLI takes precedence)
	cfg.Merge(cmd.String("file"), cmd.String("output"), cmd.Bool("no-backup"))
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Debug("configuration resolved",
		"file", cfg.File,
		"adapter_fstypes", cfg.AdapterFSTypes,
		"output", cfg.Output,
		"backup", *cfg.Backup,
	)
	return cfg, nil
}
