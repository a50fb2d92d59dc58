package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	got := String()
	if !strings.HasPrefix(got, "pam-mount-users 1.2.3 (commit: ") {
		t.Errorf("String() = %q, want program name and version prefix", got)
	}
}
