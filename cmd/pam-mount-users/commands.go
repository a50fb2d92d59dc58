package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kriansa/pam-mount-users/internal/document"
	"github.com/kriansa/pam-mount-users/internal/log"
	"github.com/kriansa/pam-mount-users/internal/procmounts"
	"github.com/kriansa/pam-mount-users/internal/rules"
	"github.com/kriansa/pam-mount-users/internal/validation"
)

// ErrUserNotFound is returned by remove-user when nothing was removed
var ErrUserNotFound = errors.New("user not found")

func ruleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "path",
			Aliases:  []string{"p"},
			Usage:    "Volume source path",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "mountpoint",
			Aliases:  []string{"m"},
			Usage:    "Volume mountpoint",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "fstype",
			Aliases: []string{"t"},
			Usage:   "Filesystem type used when a new volume is created",
			Value:   rules.DefaultFSType,
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Access mode the whitelist applies to: rw or ro",
			Value: "rw",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Print the resulting document instead of saving it",
		},
	}
}

// ruleFromFlags builds a candidate rule and validates the username argument
func ruleFromFlags(cmd *cli.Command) (rules.Rule, string, error) {
	if cmd.Args().Len() != 1 {
		return rules.Rule{}, "", fmt.Errorf("expected exactly one USERNAME argument, got %d", cmd.Args().Len())
	}
	username := cmd.Args().First()
	if err := validation.ValidateUsername(username); err != nil {
		return rules.Rule{}, "", err
	}

	mode, err := rules.ParseAccessMode(cmd.String("mode"))
	if err != nil {
		return rules.Rule{}, "", err
	}
	if mode == rules.AccessUnspecified {
		return rules.Rule{}, "", fmt.Errorf("%w: mode is required", rules.ErrInvalidRule)
	}

	rule := rules.Rule{
		Path:       cmd.String("path"),
		Mountpoint: cmd.String("mountpoint"),
		FSType:     cmd.String("fstype"),
		AccessMode: mode,
	}
	if err := validation.ValidatePath("path", rule.Path); err != nil {
		return rules.Rule{}, "", err
	}
	if err := validation.ValidatePath("mountpoint", rule.Mountpoint); err != nil {
		return rules.Rule{}, "", err
	}
	if err := validation.ValidateFSType(rule.FSType); err != nil {
		return rules.Rule{}, "", err
	}

	return rule, username, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List volumes and their user whitelists",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			doc, err := cfg.Store().Load(cfg.File)
			if err != nil {
				return err
			}

			listed := cfg.Translator().ListRules(doc)
			log.Debug("volumes decoded", "count", len(listed))

			var mounted map[string]bool
			if mounts, err := procmounts.ParseFile(cmd.String("mount-table")); err != nil {
				log.Warn("mount status unavailable", "error", err)
			} else {
				mounted = procmounts.MountedSet(mounts)
			}

			return render(cmd.Root().Writer, cfg.Output, listed, mounted)
		},
	}
}

func addUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-user",
		Usage:     "Allow a user to mount a volume, creating the volume if needed",
		ArgsUsage: "USERNAME",
		Flags:     ruleFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return editCommand(cmd, func(tr *rules.Translator, doc *document.Document, rule rules.Rule, username string) error {
				if err := tr.AddUser(doc, rule, username); err != nil {
					return err
				}
				log.Info("user added", "user", username, "path", rule.Path, "mountpoint", rule.Mountpoint, "mode", rule.AccessMode)
				return nil
			})
		},
	}
}

func removeUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove-user",
		Usage:     "Remove a user from a volume whitelist",
		ArgsUsage: "USERNAME",
		Flags:     ruleFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return editCommand(cmd, func(tr *rules.Translator, doc *document.Document, rule rules.Rule, username string) error {
				removed, err := tr.RemoveUser(doc, rule, username)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%w: %q on %s -> %s (%s)", ErrUserNotFound, username, rule.Path, rule.Mountpoint, rule.AccessMode)
				}
				log.Info("user removed", "user", username, "path", rule.Path, "mountpoint", rule.Mountpoint, "mode", rule.AccessMode)
				return nil
			})
		},
	}
}

type editFunc func(tr *rules.Translator, doc *document.Document, rule rules.Rule, username string) error

// editCommand runs a load-edit-save cycle on the configured file
func editCommand(cmd *cli.Command, edit editFunc) error {
	rule, username, err := ruleFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := cfg.Store()
	doc, err := store.Load(cfg.File)
	if err != nil {
		return err
	}

	if err := edit(cfg.Translator(), doc, rule, username); err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		return printDocument(cmd.Root().Writer, doc)
	}
	return store.Save(cfg.File, doc)
}

func printDocument(w io.Writer, doc *document.Document) error {
	text, err := doc.Serialize()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}
