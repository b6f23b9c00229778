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

import "testing"

// sampleTree builds a small inventory tree by hand: one mission holding two
// datasets with parameters, plus a timetable.
func sampleTree() *Node {
	root := NewNode(NamespaceNode, "test", "test", "test", true, nil)
	mission := NewNode(NamespaceNode, "Cluster", "Cluster", "test", true, nil)
	root.AddChild("Cluster", mission)

	ds1 := NewNode(DatasetNode, "c1-fgm", "c1-fgm-prp", "test", true, nil)
	ds1.AddChild("b_gse", NewNode(ParameterNode, "b_gse", "c1_b_gse", "test", true, nil))
	ds1.Child("b_gse").AddChild("bx", NewNode(ComponentNode, "bx", "c1_b_gse_x", "test", true, nil))
	mission.AddChild("c1_fgm", ds1)

	ds2 := NewNode(DatasetNode, "c2-fgm", "c2-fgm-prp", "test", true, nil)
	ds2.AddChild("b_gse", NewNode(ParameterNode, "b_gse", "c2_b_gse", "test", true, nil))
	mission.AddChild("c2_fgm", ds2)

	root.AddChild("tt", NewNode(TimetableNode, "shocks", "tt_shocks", "test", true, nil))
	return root
}

func TestFlatten(t *testing.T) {
	inv := Flatten("test", sampleTree())
	if len(inv.Datasets) != 2 {
		t.Errorf("got %d datasets, want 2", len(inv.Datasets))
	}
	if len(inv.Parameters) != 2 {
		t.Errorf("got %d parameters, want 2", len(inv.Parameters))
	}
	if len(inv.Components) != 1 {
		t.Errorf("got %d components, want 1", len(inv.Components))
	}
	if len(inv.Timetables) != 1 {
		t.Errorf("got %d timetables, want 1", len(inv.Timetables))
	}
}

func TestProductType(t *testing.T) {
	inv := Flatten("test", sampleTree())
	for uid, want := range map[string]ProductKind{
		"c1-fgm-prp": DatasetProduct,
		"c1_b_gse":   ParameterProduct,
		"c1_b_gse_x": ComponentProduct,
		"tt_shocks":  TimetableProduct,
		"nope":       UnknownProduct,
	} {
		if got := inv.ProductType(uid); got != want {
			t.Errorf("ProductType(%q) = %v, want %v", uid, got, want)
		}
	}
}

func TestFindParentDataset(t *testing.T) {
	inv := Flatten("test", sampleTree())
	for uid, want := range map[string]string{
		"c1-fgm-prp": "c1-fgm-prp", // a dataset is its own parent
		"c1_b_gse":   "c1-fgm-prp",
		"c1_b_gse_x": "c1-fgm-prp",
		"c2_b_gse":   "c2-fgm-prp",
	} {
		got, ok := inv.FindParentDataset(uid)
		if !ok {
			t.Errorf("FindParentDataset(%q) not found", uid)
			continue
		}
		if got != want {
			t.Errorf("FindParentDataset(%q) = %q, want %q", uid, got, want)
		}
	}
	if _, ok := inv.FindParentDataset("tt_shocks"); ok {
		t.Error("timetables have no parent dataset")
	}
}

func TestAddChildCollision(t *testing.T) {
	n := NewNode(NamespaceNode, "root", "root", "test", true, nil)
	n.AddChild("b", NewNode(ParameterNode, "b", "b1", "test", true, nil))
	n.AddChild("b", NewNode(ParameterNode, "b", "b2", "test", true, nil))
	if n.Child("b").UID != "b1" {
		t.Error("first sibling should keep the original key")
	}
	if c := n.Child("b_2"); c == nil || c.UID != "b2" {
		t.Error("second sibling should be reachable under a suffixed key")
	}
	if len(n.Children()) != 2 {
		t.Errorf("got %d children, want 2", len(n.Children()))
	}
}

func TestIsUserProduct(t *testing.T) {
	root := sampleTree()
	private := NewNode(NamespaceNode, "MyTimeTables", "MyTimeTables", "test", false, nil)
	private.AddChild("mine", NewNode(TimetableNode, "mine", "tt_mine", "test", false, nil))
	root.AddChild("MyTimeTables", private)

	inv := Flatten("test", root)
	if inv.IsUserProduct("tt_shocks") {
		t.Error("shared timetable reported as user product")
	}
	if !inv.IsUserProduct("tt_mine") {
		t.Error("private timetable not reported as user product")
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Inventory("test"); ok {
		t.Fatal("empty registry should have no snapshot")
	}
	r.Replace(Flatten("test", sampleTree()))
	inv, ok := r.Inventory("test")
	if !ok || inv.Provider != "test" {
		t.Fatal("snapshot not installed")
	}
	replacement := Flatten("test", NewNode(NamespaceNode, "test", "test", "test", true, nil))
	r.Replace(replacement)
	inv, _ = r.Inventory("test")
	if len(inv.Datasets) != 0 {
		t.Error("replacement should supersede the old snapshot wholesale")
	}
}
