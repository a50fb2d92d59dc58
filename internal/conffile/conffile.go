package conffile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/kriansa/pam-mount-users/internal/document"
	"github.com/kriansa/pam-mount-users/internal/log"
)

const (
	// DefaultPath is where pam_mount reads its configuration from
	DefaultPath = "/etc/security/pam_mount.conf.xml"

	backupSuffix = ".bak"
	defaultMode  = 0644
)

// ErrNotFound is returned when the configuration file does not exist
var ErrNotFound = errors.New("configuration file not found")

// Store reads and writes pam_mount configuration files
type Store struct {
	fs     afero.Fs
	backup bool
}

// Option configures a Store
type Option func(*Store)

// WithFs sets the filesystem used by the store
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithBackup keeps a copy of the previous file contents at <path>.bak on Save
func WithBackup(enabled bool) Option {
	return func(s *Store) {
		s.backup = enabled
	}
}

// NewStore creates a Store on the OS filesystem
func NewStore(opts ...Option) *Store {
	s := &Store{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and parses the file at path
func (s *Store) Load(path string) (*document.Document, error) {
	log.Debug("loading configuration", "path", path)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := document.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	log.Debug("configuration loaded", "path", path, "volumes", doc.Len())
	return doc, nil
}

// Save serializes doc and replaces the file at path. The new contents are
// written to a temporary file in the same directory and renamed into place.
func (s *Store) Save(path string, doc *document.Document) error {
	text, err := doc.Serialize()
	if err != nil {
		return err
	}

	mode := os.FileMode(defaultMode)
	info, err := s.fs.Stat(path)
	switch {
	case err == nil:
		mode = info.Mode().Perm()
		if s.backup {
			if err := s.writeBackup(path, mode); err != nil {
				return err
			}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("stat %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := s.fs.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove temporary file", "path", tmpName, "error", err)
		}
	}

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := s.fs.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}

	log.Info("configuration saved", "path", path, "volumes", doc.Len())
	return nil
}

func (s *Store) writeBackup(path string, mode os.FileMode) error {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return fmt.Errorf("read %s for backup: %w", path, err)
	}

	backupPath := path + backupSuffix
	if err := afero.WriteFile(s.fs, backupPath, data, mode); err != nil {
		return fmt.Errorf("write backup %s: %w", backupPath, err)
	}

	log.Debug("backup written", "path", backupPath)
	return nil
}
