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
	"time"

	"github.com/ctessum/sparse"
)

// Axis is a secondary (non-time) axis of a Variable. A time-dependent axis
// has the same leading dimension as the variable's time axis.
type Axis struct {
	Name          string
	Values        *sparse.DenseArray
	TimeDependent bool
}

// Variable is a decoded time series: a strictly increasing time axis, zero
// or more secondary axes, a values block whose leading dimension equals the
// time axis length, and provider metadata.
type Variable struct {
	Name    string
	Time    []time.Time
	Axes    []Axis
	Values  *sparse.DenseArray
	Columns []string
	Meta    map[string]string
}

// Len returns the number of samples on the time axis.
func (v *Variable) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Time)
}

// width returns the number of value columns per time sample.
func (v *Variable) width() int {
	if v.Values == nil {
		return 0
	}
	w := 1
	for _, n := range v.Values.Shape[1:] {
		w *= n
	}
	return w
}

// Range returns the interval covered by the variable's time axis,
// or a zero range when the variable is empty.
func (v *Variable) Range() TimeRange {
	if v.Len() == 0 {
		return TimeRange{}
	}
	return TimeRange{Start: v.Time[0], Stop: v.Time[len(v.Time)-1]}
}

// Merge concatenates b after a along the time dimension. Either argument
// may be nil, in which case the other is returned unchanged. Secondary axes
// and metadata are taken from a; time-dependent axes are concatenated in
// lockstep with the values block.
//
// No de-duplication of overlapping timestamps is performed: callers must
// guarantee that a ends no later than b begins, which the chunk generator
// does by construction. Overlapping inputs silently produce duplicate
// samples.
func Merge(a, b *Variable) (*Variable, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.width() != b.width() {
		return nil, fmt.Errorf("impex: merging %s: value widths differ (%d != %d)",
			a.Name, a.width(), b.width())
	}
	if len(a.Axes) != len(b.Axes) {
		return nil, fmt.Errorf("impex: merging %s: axis counts differ (%d != %d)",
			a.Name, len(a.Axes), len(b.Axes))
	}

	out := &Variable{
		Name:    a.Name,
		Time:    append(append([]time.Time{}, a.Time...), b.Time...),
		Columns: a.Columns,
		Meta:    a.Meta,
		Values:  concatRows(a.Values, b.Values),
	}
	for i, ax := range a.Axes {
		if !ax.TimeDependent {
			out.Axes = append(out.Axes, ax)
			continue
		}
		out.Axes = append(out.Axes, Axis{
			Name:          ax.Name,
			Values:        concatRows(ax.Values, b.Axes[i].Values),
			TimeDependent: true,
		})
	}
	return out, nil
}

// concatRows stacks b under a along the leading dimension.
func concatRows(a, b *sparse.DenseArray) *sparse.DenseArray {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	shape := append([]int{a.Shape[0] + b.Shape[0]}, a.Shape[1:]...)
	out := sparse.ZerosDense(shape...)
	copy(out.Elements, a.Elements)
	copy(out.Elements[len(a.Elements):], b.Elements)
	return out
}

// ConcatColumns assembles one variable from several raw sub-variables
// stored separately by the provider (e.g. vector components). All inputs
// must share the same time axis length; values are concatenated along the
// column dimension. Metadata and the time axis come from the first input;
// secondary axes of later inputs are appended.
func ConcatColumns(name string, vars []*Variable) (*Variable, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	if len(vars) == 1 {
		out := *vars[0]
		out.Name = name
		return &out, nil
	}

	first := vars[0]
	rows := first.Len()
	width := 0
	for _, v := range vars {
		if v.Len() != rows {
			return nil, fmt.Errorf("impex: assembling %s: time axis length %d != %d",
				name, v.Len(), rows)
		}
		width += v.width()
	}

	out := &Variable{
		Name:   name,
		Time:   first.Time,
		Axes:   first.Axes,
		Meta:   first.Meta,
		Values: sparse.ZerosDense(rows, width),
	}
	for i := 0; i < rows; i++ {
		col := 0
		for _, v := range vars {
			w := v.width()
			copy(out.Values.Elements[i*width+col:i*width+col+w],
				v.Values.Elements[i*w:(i+1)*w])
			col += w
		}
	}
	for _, v := range vars {
		out.Columns = append(out.Columns, v.Columns...)
	}
	for _, v := range vars[1:] {
		for _, ax := range v.Axes {
			if !ax.TimeDependent {
				out.Axes = append(out.Axes, ax)
			}
		}
	}
	return out, nil
}

// Dataset is a named collection of variables retrieved together, keyed by
// parameter display name. It is never flattened further.
type Dataset struct {
	Name      string
	Variables map[string]*Variable
	Meta      map[string]string
}
