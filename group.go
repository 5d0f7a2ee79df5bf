package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group ArrayMeta under the “.zgroup” key under
// some logical path. E.g., a group exists at the root of an array store if the
// “.zgroup” key exists in the store, and a group exists at logical path
// “foo/bar” if the “foo/bar/.zgroup” key exists in the store.
type GroupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

func (GroupMeta) MetaType() MetaType { return MTGroup }

// Group is an opened hierarchy node. Array keys returned by a Group are
// relative to it.
type Group struct {
	path  Path
	store Store
	meta  GroupMeta
	attrs Attributes
	// consolidated is non-nil when the group carries a .zmetadata document
	consolidated *ConsolidatedMetadata
}

// CreateGroup writes a .zgroup document, and .zattrs when attrs is non-nil.
func CreateGroup(store Store, path string, attrs Attributes) (*Group, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	meta := GroupMeta{ZarrFormat: Version}
	data, _ := json.Marshal(meta)
	if err := store.Put(p.Join(string(MTGroup)).String(), bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = Attributes{}
	} else {
		data, err := json.Marshal(attrs)
		if err != nil {
			return nil, err
		}
		if err := store.Put(p.Join(string(MTAttributes)).String(), bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}
	return &Group{path: p, store: store, meta: meta, attrs: attrs}, nil
}

// OpenGroup opens the group at path. The .zgroup key must exist.
func OpenGroup(store Store, path string) (*Group, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	g := &Group{path: p, store: store}

	data, err := readKey(store, p.Join(string(MTGroup)).String())
	if err != nil {
		return nil, fmt.Errorf("opening group %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &g.meta); err != nil {
		return nil, fmt.Errorf("opening group %q: %w", path, err)
	}

	data, err = readKey(store, p.Join(string(MTMetadata)).String())
	switch {
	case err == nil:
		cm := &ConsolidatedMetadata{}
		if err := json.Unmarshal(data, cm); err != nil {
			return nil, fmt.Errorf("reading consolidated metadata of %q: %w", path, err)
		}
		g.consolidated = cm
	case !errors.Is(err, ErrNotfound):
		return nil, err
	}

	if g.consolidated != nil {
		if attrs := g.consolidated.Attributes(""); attrs != nil {
			g.attrs = attrs
		}
	}
	if g.attrs == nil {
		if g.attrs, err = readAttributes(store, p); err != nil {
			return nil, fmt.Errorf("opening group %q: %w", path, err)
		}
	}
	return g, nil
}

func (g *Group) Path() string { return g.path.String() }

// Attributes returns the group's .zattrs, never nil.
func (g *Group) Attributes() Attributes { return g.attrs }

// Consolidated reports whether array listing is served from .zmetadata.
func (g *Group) Consolidated() bool { return g.consolidated != nil }

// ArrayKeys lists every array below the group, sorted, relative to the
// group path.
func (g *Group) ArrayKeys() ([]string, error) {
	if g.consolidated != nil {
		keys := g.consolidated.ArrayPaths()
		sort.Strings(keys)
		return keys, nil
	}

	prefix := ""
	if len(g.path) > 0 {
		prefix = g.path.String() + "/"
	}
	all, err := g.store.Keys(prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		rel := strings.TrimPrefix(k, prefix)
		if mt, ok := KeyMetaType(rel); !ok || mt != MTArray {
			continue
		}
		if rel != string(MTArray) && !strings.HasSuffix(rel, "/"+string(MTArray)) {
			continue
		}
		keys = append(keys, trimMetaKey(rel, MTArray))
	}
	sort.Strings(keys)
	return keys, nil
}

// OpenArray opens the array at key, relative to the group.
func (g *Group) OpenArray(key string) (*Array, error) {
	rel, err := NewPath(key)
	if err != nil {
		return nil, err
	}
	return Open(g.store, g.path.Join(rel...).String(), ModeRead)
}

// Consolidate writes a .zmetadata document describing every array, group
// and attribute set below the group.
func (g *Group) Consolidate() error {
	prefix := ""
	if len(g.path) > 0 {
		prefix = g.path.String() + "/"
	}
	all, err := g.store.Keys(prefix)
	if err != nil {
		return err
	}
	doc := struct {
		ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
		Metadata           map[string]json.RawMessage `json:"metadata"`
	}{ConsolidatedFormat: 1, Metadata: map[string]json.RawMessage{}}
	for _, k := range all {
		rel := strings.TrimPrefix(k, prefix)
		if _, ok := KeyMetaType(rel); !ok {
			continue
		}
		data, err := readKey(g.store, k)
		if err != nil {
			return err
		}
		doc.Metadata[rel] = data
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := g.store.Put(g.path.Join(string(MTMetadata)).String(), bytes.NewReader(data)); err != nil {
		return err
	}
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal(data, cm); err != nil {
		return err
	}
	g.consolidated = cm
	return nil
}
