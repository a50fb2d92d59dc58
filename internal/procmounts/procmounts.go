package procmounts

import (
	"slices"
	"strings"
)

// Entry represents an entry in /proc/mounts
type Entry struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// ReadOnly reports whether the mount carries the "ro" option
func (e Entry) ReadOnly() bool {
	return slices.Contains(strings.Split(e.Options, ","), "ro")
}
