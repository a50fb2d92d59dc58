package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/kriansa/pam-mount-users/internal/rules"
)

// listedVolume is one row of list output
type listedVolume struct {
	Path       string           `json:"path" yaml:"path"`
	Mountpoint string           `json:"mountpoint" yaml:"mountpoint"`
	FSType     string           `json:"fstype" yaml:"fstype"`
	Access     rules.AccessMode `json:"access" yaml:"access"`
	Users      []string         `json:"users" yaml:"users"`
	// Mounted is nil when the mount table could not be read
	Mounted *bool `json:"mounted,omitempty" yaml:"mounted,omitempty"`
}

func toListed(listed []rules.Rule, mounted map[string]bool) []listedVolume {
	out := make([]listedVolume, 0, len(listed))
	for _, r := range listed {
		v := listedVolume{
			Path:       r.Path,
			Mountpoint: r.Mountpoint,
			FSType:     r.FSType,
			Access:     r.AccessMode,
			Users:      r.Users,
		}
		if mounted != nil {
			m := mounted[filepath.Clean(r.Mountpoint)]
			v.Mounted = &m
		}
		out = append(out, v)
	}
	return out
}

func render(w io.Writer, format string, listed []rules.Rule, mounted map[string]bool) error {
	volumes := toListed(listed, mounted)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(volumes)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(volumes); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return renderTable(w, volumes)
	}
}

func renderTable(w io.Writer, volumes []listedVolume) error {
	if len(volumes) == 0 {
		_, err := fmt.Fprintln(w, "no volumes configured")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "MOUNTPOINT", "FSTYPE", "ACCESS", "USERS", "MOUNTED")

	for _, v := range volumes {
		users := strings.Join(v.Users, ",")
		if len(v.Users) == 1 && v.Users[0] == rules.AllUsers {
			users = "(all)"
		}

		status := "-"
		if v.Mounted != nil {
			status = "no"
			if *v.Mounted {
				status = "yes"
			}
		}

		t.Row(v.Path, v.Mountpoint, v.FSType, v.Access.String(), users, status)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
