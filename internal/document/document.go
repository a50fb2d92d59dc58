// Package document holds a parsed pam_mount configuration and exposes the
// structural primitives needed to edit its volume entries. Everything the
// package does not understand (comments, global options, other elements) is
// kept in the tree untouched and written back on Serialize.
package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const (
	rootTag      = "pam_mount"
	volumeTag    = "volume"
	whitelistTag = "or"
	userTag      = "user"

	attrPath       = "path"
	attrMountpoint = "mountpoint"
	attrFSType     = "fstype"
	attrOptions    = "options"
	attrNoRoot     = "noroot"

	indentSpaces = 2
)

var (
	// ErrParse is returned when the input is not a well-formed document
	ErrParse = errors.New("malformed configuration document")
	// ErrNoEntry is returned when an EntryID does not refer to an entry
	ErrNoEntry = errors.New("no such entry")
)

// EntryID is a stable handle to a volume entry owned by a Document.
// Entries are never removed, so a handle stays valid for the life of the
// Document.
type EntryID int

// Attributes are the volume attributes this package reads and writes.
// Optional attributes are nil when absent.
type Attributes struct {
	Path       string
	Mountpoint string
	FSType     *string
	Options    *string
	NoRoot     *string
}

// RawEntry is a snapshot of one volume element
type RawEntry struct {
	ID EntryID
	Attributes
	// Users is the whitelist in document order, each name as written
	Users []string
	// HasWhitelist reports whether the volume has an "or" block, even an empty one
	HasWhitelist bool
}

// Document is an ordered collection of volume entries backed by the full
// document tree
type Document struct {
	tree    *etree.Document
	volumes []*etree.Element
}

// New creates an empty document with a pam_mount root
func New() *Document {
	tree := etree.NewDocument()
	tree.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	tree.CreateElement(rootTag)
	return &Document{tree: tree}
}

// Parse parses text into a Document. A document without volume entries is
// valid; input that is not well-formed returns an error wrapping ErrParse.
func Parse(text string) (*Document, error) {
	return ParseBytes([]byte(text))
}

// ParseBytes is Parse for a byte slice
func ParseBytes(data []byte) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := checkTopLevel(tree); err != nil {
		return nil, err
	}
	root := tree.Root()

	return &Document{
		tree:    tree,
		volumes: root.SelectElements(volumeTag),
	}, nil
}

// Len returns the number of volume entries
func (d *Document) Len() int {
	return len(d.volumes)
}

// Entries returns a snapshot of every entry in document order
func (d *Document) Entries() []RawEntry {
	entries := make([]RawEntry, 0, len(d.volumes))
	for i := range d.volumes {
		entries = append(entries, d.entry(EntryID(i)))
	}
	return entries
}

// Entry returns a snapshot of a single entry
func (d *Document) Entry(id EntryID) (RawEntry, bool) {
	if !d.valid(id) {
		return RawEntry{}, false
	}
	return d.entry(id), true
}

// AppendEntry adds a new volume at the end of the document. No duplicate
// detection is done here.
func (d *Document) AppendEntry(attrs Attributes) EntryID {
	root := d.tree.Root()
	vol := root.CreateElement(volumeTag)

	if attrs.NoRoot != nil {
		vol.CreateAttr(attrNoRoot, *attrs.NoRoot)
	}
	vol.CreateAttr(attrPath, attrs.Path)
	vol.CreateAttr(attrMountpoint, attrs.Mountpoint)
	if attrs.FSType != nil {
		vol.CreateAttr(attrFSType, *attrs.FSType)
	}
	if attrs.Options != nil {
		vol.CreateAttr(attrOptions, *attrs.Options)
	}

	d.volumes = append(d.volumes, vol)
	return EntryID(len(d.volumes) - 1)
}

// AddChildUser appends name to the entry's whitelist, creating the
// whitelist if needed. Names already present are appended again.
func (d *Document) AddChildUser(id EntryID, name string) error {
	if !d.valid(id) {
		return fmt.Errorf("%w: %d", ErrNoEntry, id)
	}

	vol := d.volumes[id]
	list := vol.SelectElement(whitelistTag)
	if list == nil {
		list = vol.CreateElement(whitelistTag)
	}
	list.CreateElement(userTag).SetText(name)
	return nil
}

// RemoveChildUser removes the first occurrence of name from the entry's
// whitelist and reports whether anything was removed
func (d *Document) RemoveChildUser(id EntryID, name string) bool {
	if !d.valid(id) {
		return false
	}

	list := d.volumes[id].SelectElement(whitelistTag)
	if list == nil {
		return false
	}

	for _, user := range list.SelectElements(userTag) {
		if userName(user) == name {
			list.RemoveChild(user)
			return true
		}
	}
	return false
}

// Serialize writes the whole document with consistent indentation
func (d *Document) Serialize() (string, error) {
	d.tree.Indent(indentSpaces)
	out, err := d.tree.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}
	return out, nil
}

func (d *Document) valid(id EntryID) bool {
	return id >= 0 && int(id) < len(d.volumes)
}

func (d *Document) entry(id EntryID) RawEntry {
	vol := d.volumes[id]

	e := RawEntry{
		ID: id,
		Attributes: Attributes{
			Path:       vol.SelectAttrValue(attrPath, ""),
			Mountpoint: vol.SelectAttrValue(attrMountpoint, ""),
			FSType:     optionalAttr(vol, attrFSType),
			Options:    optionalAttr(vol, attrOptions),
			NoRoot:     optionalAttr(vol, attrNoRoot),
		},
	}

	if list := vol.SelectElement(whitelistTag); list != nil {
		e.HasWhitelist = true
		for _, user := range list.SelectElements(userTag) {
			e.Users = append(e.Users, userName(user))
		}
	}

	return e
}

// checkTopLevel requires exactly one root element and no text outside it
func checkTopLevel(tree *etree.Document) error {
	roots := 0
	for _, tok := range tree.Child {
		switch t := tok.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return fmt.Errorf("%w: text outside the root element", ErrParse)
			}
		}
	}

	switch roots {
	case 0:
		return fmt.Errorf("%w: no root element", ErrParse)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %d root elements", ErrParse, roots)
	}
}

func optionalAttr(el *etree.Element, key string) *string {
	attr := el.SelectAttr(key)
	if attr == nil {
		return nil
	}
	v := attr.Value
	return &v
}

func userName(el *etree.Element) string {
	return el.Text()
}
