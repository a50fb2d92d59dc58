package rules

import (
	"errors"
	"fmt"
	"strings"
)

// AllUsers is the user list entry that stands for "no whitelist, every user allowed"
const AllUsers = "__ALL__"

// DefaultFSType is the filesystem type of a volume without an fstype attribute
const DefaultFSType = "bind"

// adapterSeparator separates an adapter filesystem type from the real path
const adapterSeparator = "#"

var (
	// ErrInvalidRule is returned when a rule lacks the fields needed to match or create an entry
	ErrInvalidRule = errors.New("invalid rule")
	// ErrNoMatch is returned when no entry matches a rule
	ErrNoMatch = errors.New("no matching volume")
)

// AccessMode is the permission axis a volume's whitelist applies to
type AccessMode int

const (
	// AccessUnspecified is only valid on candidate rules. It never matches.
	AccessUnspecified AccessMode = iota
	ReadWrite
	ReadOnly
)

func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "ro"
	default:
		return "unspecified"
	}
}

// ParseAccessMode parses "rw" or "ro". The empty string is AccessUnspecified.
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return AccessUnspecified, nil
	case "rw":
		return ReadWrite, nil
	case "ro":
		return ReadOnly, nil
	default:
		return AccessUnspecified, fmt.Errorf("unknown access mode %q (use 'rw' or 'ro')", s)
	}
}

func (m AccessMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Rule is the normalized form of a volume entry
type Rule struct {
	Path       string     `json:"path" yaml:"path"`
	Mountpoint string     `json:"mountpoint" yaml:"mountpoint"`
	FSType     string     `json:"fstype" yaml:"fstype"`
	AccessMode AccessMode `json:"access" yaml:"access"`
	// Users is either the whitelist in document order or []string{AllUsers}
	Users []string `json:"users" yaml:"users"`
}

// Validate checks that the rule carries the fields needed to look up or create an entry
func (r Rule) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRule)
	}
	if r.Mountpoint == "" {
		return fmt.Errorf("%w: mountpoint is required", ErrInvalidRule)
	}
	return nil
}

// AllowsAll reports whether the rule has no whitelist restriction
func (r Rule) AllowsAll() bool {
	return len(r.Users) == 1 && r.Users[0] == AllUsers
}

// EncodePath stores fstype as a prefix of path
func EncodePath(fstype, path string) string {
	return fstype + adapterSeparator + path
}

// DecodePath splits a stored path on the first separator. ok is false when
// the path carries no filesystem type prefix.
func DecodePath(stored string) (fstype, path string, ok bool) {
	fstype, path, ok = strings.Cut(stored, adapterSeparator)
	if !ok {
		return "", stored, false
	}
	return fstype, path, true
}
