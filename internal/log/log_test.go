package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet hides debug", false, false},
		{"verbose shows debug", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetupWriter(&buf, tt.verbose)

			Debug("debug message")
			Info("info message")

			out := buf.String()
			assert.Contains(t, out, "info message")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug message")))
		})
	}
}

func TestWrite_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, true)

	Warn("saving file", "path", "/etc/security/pam_mount.conf.xml", "error", errors.New("boom"), "dangling")

	out := buf.String()
	assert.Contains(t, out, "saving file")
	assert.Contains(t, out, "/etc/security/pam_mount.conf.xml")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "!BADKEY")
}

func TestIsTerminal_NonTTYFiles(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devNull.Close()

	regular, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer regular.Close()

	tests := []struct {
		name string
		file *os.File
	}{
		{"character device", devNull},
		{"regular file", regular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, isTerminal(tt.file))
		})
	}

	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))
}

func TestSetupWriter_NoColorForFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	f, err := os.Create(path)
	require.NoError(t, err)

	SetupWriter(f, false)
	Info("plain output", "user", "alice")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "plain output")
	assert.NotContains(t, string(data), "\x1b")
}
