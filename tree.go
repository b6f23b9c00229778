/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// NameMapping configures how one provider's XML dialect maps onto the
// uniform index model. Different providers use different vocabularies for
// the same semantic role, so parse-mode selection is explicit per provider
// rather than inferred from response shape.
type NameMapping struct {
	// RootElement is the element that must enclose the product tree
	// (e.g. "dataCenter" for an obs-data-tree). Its absence is fatal to
	// the inventory build for this provider. Empty means the document
	// root itself.
	RootElement string

	// TimetableListRoot, CatalogListRoot and ParameterListRoot name the
	// enclosing elements of the timetable, catalog and derived-parameter
	// list documents. Empty selects the dialect defaults.
	TimetableListRoot string
	CatalogListRoot   string
	ParameterListRoot string

	// Kinds maps dialect element names to node kinds, consulted before
	// the default classification table.
	Kinds map[string]NodeKind

	// UIDAttrs names the attribute carrying the stable identifier for
	// each kind, consulted before the default attribute list.
	UIDAttrs map[NodeKind]string
}

// defaultKinds is the fallback classification table shared by the known
// Impex dialects.
var defaultKinds = map[string]NodeKind{
	"mission":      NamespaceNode,
	"observatory":  NamespaceNode,
	"instrument":   NamespaceNode,
	"folder":       NamespaceNode,
	"datasetGroup": NamespaceNode,
	"dataset":      DatasetNode,
	"parameter":    ParameterNode,
	"param":        ParameterNode,
	"component":    ComponentNode,
	"timetab":      TimetableNode,
	"timeTable":    TimetableNode,
	"timetable":    TimetableNode,
	"catalog":      CatalogNode,
}

// uidAttrCandidates are tried in order when the mapping does not name a
// uid attribute for a kind.
var uidAttrCandidates = []string{"xmlid", "id", "name"}

// canonicalMeta renames dialect attribute keys to the canonical keys the
// engine reads (definition ranges, restriction markers, units, shapes).
var canonicalMeta = map[string]string{
	"unit":                 "UNITS",
	"units":                "UNITS",
	"dataStart":            "start_date",
	"start":                "start_date",
	"dataStop":             "stop_date",
	"stop":                 "stop_date",
	"lastModificationDate": "lastUpdate",
	"desc":                 "description",
	"size":                 "shape",
	"caveat":               "Caveats",
	"display_type":         "DISPLAY_TYPE",
}

type xmlElement struct {
	XMLName  xml.Name
	Attrs    []xml.Attr   `xml:",any,attr"`
	Children []xmlElement `xml:",any"`
}

// BuildInventory converts a provider-specific hierarchical description into
// an index tree rooted at the mapped root section. Nodes built with
// public=false are tagged private; the same builder runs once per
// credential scope.
func BuildInventory(raw []byte, provider string, m NameMapping, public bool) (*Node, error) {
	var doc xmlElement
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Provider: provider, Path: "/", Err: err}
	}

	rootElem := &doc
	path := "/" + doc.XMLName.Local
	if m.RootElement != "" {
		var found *xmlElement
		var foundPath string
		findElement(&doc, path, m.RootElement, &found, &foundPath)
		if found == nil {
			return nil, &ParseError{Provider: provider, Path: path,
				Err: fmt.Errorf("no %s section", m.RootElement)}
		}
		rootElem, path = found, foundPath
	}

	root := NewNode(NamespaceNode, displayName(rootElem), displayName(rootElem), provider, public,
		attrMap(rootElem.Attrs))
	for i := range rootElem.Children {
		if err := buildNode(root, &rootElem.Children[i], provider, m, public, path); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// findElement locates the first element named want, depth first.
func findElement(e *xmlElement, path, want string, found **xmlElement, foundPath *string) {
	if *found != nil {
		return
	}
	if e.XMLName.Local == want {
		*found, *foundPath = e, path
		return
	}
	for i := range e.Children {
		c := &e.Children[i]
		findElement(c, path+"/"+c.XMLName.Local, want, found, foundPath)
	}
}

func buildNode(parent *Node, e *xmlElement, provider string, m NameMapping, public bool, parentPath string) error {
	path := parentPath + "/" + e.XMLName.Local

	kind, ok := m.Kinds[e.XMLName.Local]
	if !ok {
		kind, ok = defaultKinds[e.XMLName.Local]
	}
	if !ok {
		if len(e.Children) == 0 {
			return nil // dialect metadata element, not a product
		}
		kind = NamespaceNode
	}

	uid := nodeUID(e, kind, m)
	if uid == "" && kind != NamespaceNode {
		return &ParseError{Provider: provider, Path: path,
			Err: fmt.Errorf("%s node has no identifier", kind)}
	}
	name := displayName(e)
	if name == "" {
		name = uid
	}
	if uid == "" {
		uid = sanitizeKey(name)
	}

	node := NewNode(kind, name, uid, provider, public, attrMap(e.Attrs))
	parent.AddChild(sanitizeKey(name), node)
	for i := range e.Children {
		if err := buildNode(node, &e.Children[i], provider, m, public, path); err != nil {
			return err
		}
	}
	return nil
}

func nodeUID(e *xmlElement, kind NodeKind, m NameMapping) string {
	if attr, ok := m.UIDAttrs[kind]; ok {
		if v := attrValue(e.Attrs, attr); v != "" {
			return v
		}
	}
	for _, attr := range uidAttrCandidates {
		if v := attrValue(e.Attrs, attr); v != "" {
			return v
		}
	}
	return ""
}

func displayName(e *xmlElement) string {
	if v := attrValue(e.Attrs, "name"); v != "" {
		return v
	}
	return e.XMLName.Local
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// attrMap copies recognized attributes into a metadata map, renaming
// dialect keys to canonical ones. Later duplicates do not overwrite
// earlier keys.
func attrMap(attrs []xml.Attr) map[string]string {
	meta := make(map[string]string, len(attrs))
	for _, a := range attrs {
		key := a.Name.Local
		if canonical, ok := canonicalMeta[key]; ok {
			key = canonical
		}
		if _, ok := meta[key]; !ok {
			meta[key] = a.Value
		}
	}
	return meta
}

// sanitizeKey turns a display name into a valid namespace key: characters
// outside [A-Za-z0-9_] become underscores and a leading digit is prefixed.
func sanitizeKey(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	key := b.String()
	if key[0] >= '0' && key[0] <= '9' {
		key = "_" + key
	}
	return key
}
