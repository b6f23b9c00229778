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
	"fmt"
	"sort"
	"sync"
)

// NodeKind tags the variant of an inventory node.
type NodeKind int

const (
	NamespaceNode NodeKind = iota
	DatasetNode
	ParameterNode
	ComponentNode
	TimetableNode
	CatalogNode
)

func (k NodeKind) String() string {
	switch k {
	case NamespaceNode:
		return "namespace"
	case DatasetNode:
		return "dataset"
	case ParameterNode:
		return "parameter"
	case ComponentNode:
		return "component"
	case TimetableNode:
		return "timetable"
	case CatalogNode:
		return "catalog"
	}
	return "unknown"
}

// Node is one entry of a provider inventory tree. Nodes are created in bulk
// during an inventory build and are not mutated afterwards except for
// metadata merged in from remote descriptions.
type Node struct {
	Kind     NodeKind
	Name     string // display name
	UID      string // stable identifier within the provider
	Provider string
	Public   bool
	Meta     map[string]string

	children map[string]*Node
	order    []string // child keys in insertion order
}

// NewNode creates a node with no children.
func NewNode(kind NodeKind, name, uid, provider string, public bool, meta map[string]string) *Node {
	if meta == nil {
		meta = make(map[string]string)
	}
	return &Node{
		Kind:     kind,
		Name:     name,
		UID:      uid,
		Provider: provider,
		Public:   public,
		Meta:     meta,
		children: make(map[string]*Node),
	}
}

// AddChild links child under key, keeping insertion order. If key is taken,
// a numeric suffix is appended so both siblings stay reachable; the child's
// display name is unaffected.
func (n *Node) AddChild(key string, child *Node) {
	if _, ok := n.children[key]; ok {
		base := key
		for i := 2; ; i++ {
			key = fmt.Sprintf("%s_%d", base, i)
			if _, ok := n.children[key]; !ok {
				break
			}
		}
	}
	n.children[key] = child
	n.order = append(n.order, key)
}

// Child returns the child linked under key, or nil.
func (n *Node) Child(key string) *Node { return n.children[key] }

// Children returns the node's children in insertion order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, k := range n.order {
		out = append(out, n.children[k])
	}
	return out
}

// ContainsUID reports whether uid identifies n or any node in its subtree.
func (n *Node) ContainsUID(uid string) bool {
	if n.UID == uid {
		return true
	}
	for _, k := range n.order {
		if n.children[k].ContainsUID(uid) {
			return true
		}
	}
	return false
}

// ProductKind classifies an identifier against the flat inventory.
type ProductKind int

const (
	UnknownProduct ProductKind = iota
	DatasetProduct
	ParameterProduct
	ComponentProduct
	TimetableProduct
	CatalogProduct
)

func (k ProductKind) String() string {
	switch k {
	case DatasetProduct:
		return "dataset"
	case ParameterProduct:
		return "parameter"
	case ComponentProduct:
		return "component"
	case TimetableProduct:
		return "timetable"
	case CatalogProduct:
		return "catalog"
	}
	return "unknown"
}

// Inventory is one provider's product tree together with its per-kind flat
// projections. It is built once and treated as read-only afterwards;
// refreshes replace the whole snapshot through a Registry.
type Inventory struct {
	Provider string
	Root     *Node

	Datasets   map[string]*Node
	Parameters map[string]*Node
	Components map[string]*Node
	Timetables map[string]*Node
	Catalogs   map[string]*Node

	datasetOrder []string // dataset uids in traversal order, for parent search
}

// Flatten derives the per-kind flat mappings from root with a single
// depth-first traversal. Every node reachable from root appears exactly
// once in the mapping for its kind.
func Flatten(provider string, root *Node) *Inventory {
	inv := &Inventory{
		Provider:   provider,
		Root:       root,
		Datasets:   make(map[string]*Node),
		Parameters: make(map[string]*Node),
		Components: make(map[string]*Node),
		Timetables: make(map[string]*Node),
		Catalogs:   make(map[string]*Node),
	}
	if root != nil {
		inv.walk(root)
	}
	return inv
}

func (inv *Inventory) walk(n *Node) {
	switch n.Kind {
	case DatasetNode:
		if _, ok := inv.Datasets[n.UID]; !ok {
			inv.datasetOrder = append(inv.datasetOrder, n.UID)
		}
		inv.Datasets[n.UID] = n
	case ParameterNode:
		inv.Parameters[n.UID] = n
	case ComponentNode:
		inv.Components[n.UID] = n
	case TimetableNode:
		inv.Timetables[n.UID] = n
	case CatalogNode:
		inv.Catalogs[n.UID] = n
	}
	for _, k := range n.order {
		inv.walk(n.children[k])
	}
}

// ProductType classifies uid by successive membership tests in the fixed
// precedence dataset, parameter, component, timetable, catalog.
func (inv *Inventory) ProductType(uid string) ProductKind {
	if _, ok := inv.Datasets[uid]; ok {
		return DatasetProduct
	}
	if _, ok := inv.Parameters[uid]; ok {
		return ParameterProduct
	}
	if _, ok := inv.Components[uid]; ok {
		return ComponentProduct
	}
	if _, ok := inv.Timetables[uid]; ok {
		return TimetableProduct
	}
	if _, ok := inv.Catalogs[uid]; ok {
		return CatalogProduct
	}
	return UnknownProduct
}

// FindParentDataset returns the dataset owning uid. A dataset is its own
// parent. For parameters and components the datasets are scanned in
// traversal order and the first subtree containing uid wins; a product
// should never belong to two datasets, but if dialect data produces that,
// the first match is returned.
func (inv *Inventory) FindParentDataset(uid string) (string, bool) {
	switch inv.ProductType(uid) {
	case DatasetProduct:
		return uid, true
	case ParameterProduct, ComponentProduct:
		for _, ds := range inv.datasetOrder {
			if inv.Datasets[ds].ContainsUID(uid) {
				return ds, true
			}
		}
	}
	return "", false
}

// IsUserProduct reports whether uid names a private (user-owned) product,
// i.e. one reached through a provider-private subtree.
func (inv *Inventory) IsUserProduct(uid string) bool {
	for _, m := range []map[string]*Node{
		inv.Datasets, inv.Parameters, inv.Components, inv.Timetables, inv.Catalogs,
	} {
		if n, ok := m[uid]; ok {
			return !n.Public
		}
	}
	return false
}

func listNodes(m map[string]*Node, public bool) []*Node {
	var out []*Node
	for _, n := range m {
		if n.Public == public {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Registry holds the current inventory snapshot per provider. Snapshots are
// replaced wholesale on refresh and read-only in between, so readers never
// observe a partially built inventory.
type Registry struct {
	mu          sync.RWMutex
	inventories map[string]*Inventory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{inventories: make(map[string]*Inventory)}
}

// Inventory returns the current snapshot for provider.
func (r *Registry) Inventory(provider string) (*Inventory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.inventories[provider]
	return inv, ok
}

// Replace installs inv as the snapshot for its provider.
func (r *Registry) Replace(inv *Inventory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventories[inv.Provider] = inv
}

// Providers returns the names of all registered providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.inventories))
	for p := range r.inventories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
