package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kriansa/pam-mount-users/internal/document"
	"github.com/kriansa/pam-mount-users/internal/rules"
)

const testConfig = `<?xml version="1.0" encoding="utf-8" ?>
<pam_mount>
  <debug enable="0"/>
  <volume path="/data" mountpoint="/mnt/data" options="ro"/>
  <volume noroot="0" path="bindfs#/srv/share" mountpoint="/mnt/share" fstype="fuse">
    <or>
      <user>alice</user>
    </or>
  </volume>
</pam_mount>
`

const testMounts = `/dev/sda1 / ext4 rw,relatime 0 0
bindfs /mnt/share fuse rw,nosuid,nodev 0 0
`

type testEnv struct {
	dir    string
	file   string
	mounts string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		file:   filepath.Join(dir, "pam_mount.conf.xml"),
		mounts: filepath.Join(dir, "mounts"),
	}
	require.NoError(t, os.WriteFile(env.file, []byte(testConfig), 0644))
	require.NoError(t, os.WriteFile(env.mounts, []byte(testMounts), 0644))
	return env
}

// run executes the CLI with global flags pointing at the test environment
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{
		"pam-mount-users",
		"--config", filepath.Join(e.dir, "missing.conf"),
		"--file", e.file,
		"--mount-table", e.mounts,
	}, args...)
	err := newApp(&out).Run(context.Background(), full)
	return out.String(), err
}

func (e testEnv) load(t *testing.T) []rules.Rule {
	t.Helper()
	data, err := os.ReadFile(e.file)
	require.NoError(t, err)
	doc, err := document.ParseBytes(data)
	require.NoError(t, err)
	return rules.NewTranslator().ListRules(doc)
}

func TestList_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "--output", "json", "list")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "/data", got[0]["path"])
	assert.Equal(t, "ro", got[0]["access"])
	assert.Equal(t, []any{rules.AllUsers}, got[0]["users"])
	assert.Equal(t, false, got[0]["mounted"])

	assert.Equal(t, "/srv/share", got[1]["path"])
	assert.Equal(t, "bindfs", got[1]["fstype"])
	assert.Equal(t, []any{"alice"}, got[1]["users"])
	assert.Equal(t, true, got[1]["mounted"])
}

func TestList_YAML(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "--output", "yaml", "list")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "/mnt/share", got[1]["mountpoint"])
	assert.Equal(t, "rw", got[1]["access"])
}

func TestList_Text(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "MOUNTPOINT")
	assert.Contains(t, out, "/srv/share")
	assert.Contains(t, out, "(all)")
	assert.Contains(t, out, "alice")
}

func TestList_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(env.file))

	_, err := env.run(t, "list")
	assert.Error(t, err)
}

func TestAddUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "add-user", "--path", "/data", "--mountpoint", "/mnt/data", "--mode", "ro", "bob")
	require.NoError(t, err)

	got := env.load(t)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"bob"}, got[0].Users)

	// previous contents are kept as a backup by default
	backup, err := os.ReadFile(env.file + ".bak")
	require.NoError(t, err)
	assert.Equal(t, testConfig, string(backup))
}

func TestAddUser_NoBackup(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "--no-backup", "add-user", "--path", "/data", "--mountpoint", "/mnt/data", "--mode", "ro", "bob")
	require.NoError(t, err)

	got := env.load(t)
	assert.Equal(t, []string{"bob"}, got[0].Users)

	_, err = os.Stat(env.file + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestAddUser_CreatesAdapterVolume(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "add-user", "--path", "/src", "--mountpoint", "/mnt/b", "--fstype", "bindfs", "carol")
	require.NoError(t, err)

	data, err := os.ReadFile(env.file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `path="bindfs#/src"`)
	assert.Contains(t, string(data), `<debug enable="0"/>`)

	got := env.load(t)
	require.Len(t, got, 3)
	assert.Equal(t, rules.Rule{
		Path:       "/src",
		Mountpoint: "/mnt/b",
		FSType:     "bindfs",
		AccessMode: rules.ReadWrite,
		Users:      []string{"carol"},
	}, got[2])
}

func TestAddUser_DryRun(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "add-user", "--dry-run", "--path", "/data", "--mountpoint", "/mnt/data", "--mode", "ro", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "<user>bob</user>")

	data, err := os.ReadFile(env.file)
	require.NoError(t, err)
	assert.Equal(t, testConfig, string(data))
}

func TestAddUser_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing username", []string{"add-user", "--path", "/data", "--mountpoint", "/mnt/data"}},
		{"bad username", []string{"add-user", "--path", "/data", "--mountpoint", "/mnt/data", "bad user"}},
		{"bad mode", []string{"add-user", "--path", "/data", "--mountpoint", "/mnt/data", "--mode", "rx", "bob"}},
		{"relative path", []string{"add-user", "--path", "data", "--mountpoint", "/mnt/data", "bob"}},
		{"missing mountpoint", []string{"add-user", "--path", "/data", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.run(t, tt.args...)
			assert.Error(t, err)

			data, err := os.ReadFile(env.file)
			require.NoError(t, err)
			assert.Equal(t, testConfig, string(data))
		})
	}
}

func TestRemoveUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "remove-user", "--path", "/srv/share", "--mountpoint", "/mnt/share", "alice")
	require.NoError(t, err)

	got := env.load(t)
	require.Len(t, got, 2)
	assert.Equal(t, []string{rules.AllUsers}, got[1].Users)
}

func TestRemoveUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "remove-user", "--path", "/data", "--mountpoint", "/mnt/data", "--mode", "ro", "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	data, err := os.ReadFile(env.file)
	require.NoError(t, err)
	assert.Equal(t, testConfig, string(data))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:")
}
