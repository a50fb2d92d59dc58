// Package rules converts between pam_mount volume entries and normalized
// mount rules, and implements the lookup and creation policy used when
// editing per-volume user whitelists.
package rules

import (
	"fmt"
	"strings"

	"github.com/kriansa/pam-mount-users/internal/document"
)

const (
	// DefaultAdapterMarker is the fstype stored for volumes mounted through an adapter
	DefaultAdapterMarker = "fuse"
	// DefaultNoRoot is the noroot attribute set on created volumes
	DefaultNoRoot = "0"

	readOnlyOption = "ro"
)

// DefaultAdapterFSTypes are the filesystem types encoded as a path prefix
var DefaultAdapterFSTypes = []string{"bindfs"}

// Store is the subset of document.Document the translator edits
type Store interface {
	Entries() []document.RawEntry
	AppendEntry(attrs document.Attributes) document.EntryID
	AddChildUser(id document.EntryID, name string) error
	RemoveChildUser(id document.EntryID, name string) bool
}

// Translator applies the matching, defaulting and path-encoding policy
type Translator struct {
	adapterFSTypes map[string]struct{}
	adapterMarker  string
	noRoot         string
}

// Option configures a Translator
type Option func(*Translator)

// WithAdapterFSTypes replaces the set of filesystem types encoded as a path prefix
func WithAdapterFSTypes(types ...string) Option {
	return func(t *Translator) {
		t.adapterFSTypes = make(map[string]struct{}, len(types))
		for _, fs := range types {
			t.adapterFSTypes[fs] = struct{}{}
		}
	}
}

// WithAdapterMarker sets the fstype stored for adapter-mounted volumes
func WithAdapterMarker(marker string) Option {
	return func(t *Translator) {
		t.adapterMarker = marker
	}
}

// WithNoRoot sets the noroot attribute written on created volumes
func WithNoRoot(value string) Option {
	return func(t *Translator) {
		t.noRoot = value
	}
}

// NewTranslator creates a Translator with the default policy, adjusted by opts
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		adapterMarker: DefaultAdapterMarker,
		noRoot:        DefaultNoRoot,
	}
	WithAdapterFSTypes(DefaultAdapterFSTypes...)(t)

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Decode converts a raw entry into a Rule
func Decode(e document.RawEntry) Rule {
	r := Rule{
		Path:       e.Path,
		Mountpoint: e.Mountpoint,
		FSType:     DefaultFSType,
		AccessMode: ReadWrite,
	}

	if e.FSType != nil {
		r.FSType = *e.FSType
	}

	if e.Options != nil && strings.Contains(*e.Options, readOnlyOption) {
		r.AccessMode = ReadOnly
	}

	if len(e.Users) > 0 {
		r.Users = append([]string(nil), e.Users...)
	} else {
		r.Users = []string{AllUsers}
	}

	if fstype, path, ok := DecodePath(e.Path); ok {
		r.FSType = fstype
		r.Path = path
	}

	return r
}

// IsAdapterFSType reports whether fstype is encoded as a path prefix
func (t *Translator) IsAdapterFSType(fstype string) bool {
	_, ok := t.adapterFSTypes[fstype]
	return ok
}

// Encode builds the attributes of a new volume for rule
func (t *Translator) Encode(rule Rule) document.Attributes {
	noRoot := t.noRoot
	attrs := document.Attributes{
		Path:       rule.Path,
		Mountpoint: rule.Mountpoint,
		NoRoot:     &noRoot,
	}

	switch {
	case t.IsAdapterFSType(rule.FSType):
		marker := t.adapterMarker
		attrs.FSType = &marker
		attrs.Path = EncodePath(rule.FSType, rule.Path)
	case rule.FSType != "" && rule.FSType != DefaultFSType:
		fstype := rule.FSType
		attrs.FSType = &fstype
	}

	// rw is the implicit default
	if rule.AccessMode == ReadOnly {
		opts := readOnlyOption
		attrs.Options = &opts
	}

	return attrs
}

// ListRules decodes every entry in document order
func (t *Translator) ListRules(doc Store) []Rule {
	entries := doc.Entries()
	rules := make([]Rule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, Decode(e))
	}
	return rules
}

// Find returns the first entry matching rule. It returns ErrNoMatch when
// nothing matches.
func (t *Translator) Find(doc Store, rule Rule) (document.EntryID, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}

	e, ok := find(doc, rule)
	if !ok {
		return 0, ErrNoMatch
	}
	return e.ID, nil
}

// FindOrCreate returns the first entry matching rule, appending a new one
// built by Encode when nothing matches
func (t *Translator) FindOrCreate(doc Store, rule Rule) (document.EntryID, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}

	if e, ok := find(doc, rule); ok {
		return e.ID, nil
	}
	return doc.AppendEntry(t.Encode(rule)), nil
}

// AddUser adds username to the whitelist of the entry matching rule,
// creating the entry if needed. Duplicate names are not filtered.
func (t *Translator) AddUser(doc Store, rule Rule, username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRule)
	}

	id, err := t.FindOrCreate(doc, rule)
	if err != nil {
		return err
	}

	if err := doc.AddChildUser(id, username); err != nil {
		return fmt.Errorf("add user %q: %w", username, err)
	}
	return nil
}

// RemoveUser removes the first occurrence of username from the whitelist of
// the entry matching rule. It reports false when no entry matches, the
// entry has no whitelist, or the user is not listed.
func (t *Translator) RemoveUser(doc Store, rule Rule, username string) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	e, ok := find(doc, rule)
	if !ok || !e.HasWhitelist {
		return false, nil
	}
	return doc.RemoveChildUser(e.ID, username), nil
}

func find(doc Store, rule Rule) (document.RawEntry, bool) {
	for _, e := range doc.Entries() {
		if matches(Decode(e), rule) {
			return e, true
		}
	}
	return document.RawEntry{}, false
}

// matches compares path, mountpoint and access mode. An unspecified
// candidate mode never matches.
func matches(existing, candidate Rule) bool {
	if existing.Path != candidate.Path || existing.Mountpoint != candidate.Mountpoint {
		return false
	}
	return candidate.AccessMode != AccessUnspecified && existing.AccessMode == candidate.AccessMode
}
