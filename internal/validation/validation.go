package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxUsernameLength is the login name limit used by shadow-utils
	MaxUsernameLength = 32
)

// usernamePattern matches portable login names:
// Must start with a letter or underscore, followed by letters, digits, underscore, dot or hyphen,
// optionally ending in "$" (machine accounts)
// See: https://pubs.opengroup.org/onlinepubs/9699919799/basedefs/V1_chap03.html#tag_03_437
var usernamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*\$?$`)

// fstypePattern matches filesystem type names such as "ext4", "fuse.sshfs" or "bindfs"
var fstypePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.+-]*$`)

// ValidateUsername validates that a user name can be written to a whitelist:
// - Matches the portable login name pattern
// - At most 32 characters
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("username is required")
	}

	if len(name) > MaxUsernameLength {
		return fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	}

	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("username must start with a letter or underscore and contain only alphanumeric, underscore, dot, or hyphen characters")
	}

	return nil
}

// ValidatePath validates a volume path or mountpoint. pam_mount expands
// variables such as %(USER) and ~, so only the basic shape is checked.
func ValidatePath(kind, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required", kind)
	}

	if strings.ContainsAny(path, "\x00\n") {
		return fmt.Errorf("%s contains invalid characters", kind)
	}

	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "~") && !strings.HasPrefix(path, "%(") && !strings.Contains(path, ":") {
		return fmt.Errorf("%s %q must be absolute", kind, path)
	}

	return nil
}

// ValidateFSType validates a filesystem type name. An empty type is allowed.
func ValidateFSType(fstype string) error {
	if fstype == "" {
		return nil
	}

	if !fstypePattern.MatchString(fstype) {
		return fmt.Errorf("invalid filesystem type %q", fstype)
	}

	return nil
}
