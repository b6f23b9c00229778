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
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/gonum/floats"
)

// TimeVariable is the conventional name of the epoch variable in the
// binary container.
const TimeVariable = "Time"

// Decode turns a raw payload into a Variable according to the provider's
// declared output format. names lists the raw sub-variables composing the
// product; when there are several they are concatenated column-wise.
func Decode(format string, data []byte, names []string) (*Variable, error) {
	switch strings.ToUpper(format) {
	case "CDF", "CDF_ISTP":
		return DecodeCDF(data, names)
	case "ASCII", "CSV":
		if len(names) == 0 {
			return nil, fmt.Errorf("impex: no variable name for tabular decode")
		}
		return DecodeTabular(data, names[0])
	}
	return nil, fmt.Errorf("impex: unsupported output format %q", format)
}

// readOnlyBuffer adapts an in-memory payload to the read-write interface
// the container library wants. Decoding never writes.
type readOnlyBuffer struct {
	*bytes.Reader
}

func (readOnlyBuffer) WriteAt(p []byte, off int64) (int, error) {
	return 0, fmt.Errorf("impex: write to read-only buffer")
}

// DecodeCDF reads the named variables from a binary container and
// assembles them into one Variable. The container must carry an epoch
// variable named Time holding seconds since the Unix epoch; every data
// variable's leading dimension is the time dimension.
func DecodeCDF(data []byte, names []string) (*Variable, error) {
	f, err := cdf.Open(readOnlyBuffer{bytes.NewReader(data)})
	if err != nil {
		return nil, fmt.Errorf("impex: opening container: %v", err)
	}

	epoch, _, err := readVar(f, TimeVariable)
	if err != nil {
		return nil, err
	}
	t := make([]time.Time, len(epoch))
	for i, s := range epoch {
		t[i] = epochToTime(s)
	}

	vars := make([]*Variable, 0, len(names))
	for _, name := range names {
		vals, shape, err := readVar(f, name)
		if err != nil {
			return nil, err
		}
		if len(shape) == 0 || shape[0] != len(t) {
			return nil, fmt.Errorf("impex: variable %s has leading dimension %v, want %d",
				name, shape, len(t))
		}
		values := sparse.ZerosDense(shape...)
		copy(values.Elements, vals)

		v := &Variable{
			Name:   name,
			Time:   t,
			Values: values,
			Meta:   varAttributes(f, name),
		}
		v.Columns = columnLabels(name, shape)
		if dep := f.Header.GetAttribute(name, "DEPEND_1"); dep != nil {
			if axis, err := readAxis(f, dep); err == nil && axis != nil {
				v.Axes = append(v.Axes, *axis)
			}
		}
		vars = append(vars, v)
	}

	if len(vars) == 1 {
		return vars[0], nil
	}
	name := names[0]
	if len(names) > 1 {
		name = strings.Join(names, ".")
	}
	return ConcatColumns(name, vars)
}

// readVar reads a full variable as float64 together with its shape.
func readVar(f *cdf.File, name string) ([]float64, []int, error) {
	shape := f.Header.Lengths(name)
	if shape == nil {
		return nil, nil, fmt.Errorf("impex: container has no variable %s", name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, nil, fmt.Errorf("impex: reading variable %s: %v", name, err)
	}
	return toFloat64s(buf), shape, nil
}

func toFloat64s(buf interface{}) []float64 {
	switch b := buf.(type) {
	case []float64:
		return b
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out
	case []int8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out
	}
	return nil
}

// varAttributes copies a variable's string attributes into a metadata map.
func varAttributes(f *cdf.File, name string) map[string]string {
	meta := make(map[string]string)
	for _, a := range f.Header.Attributes(name) {
		if s, ok := f.Header.GetAttribute(name, a).(string); ok {
			meta[a] = s
		}
	}
	return meta
}

// readAxis loads a DEPEND_1-style axis variable as a non-time-dependent
// secondary axis.
func readAxis(f *cdf.File, dep interface{}) (*Axis, error) {
	name, ok := dep.(string)
	if !ok || name == "" {
		return nil, nil
	}
	vals, shape, err := readVar(f, name)
	if err != nil {
		return nil, err
	}
	values := sparse.ZerosDense(shape...)
	copy(values.Elements, vals)
	return &Axis{Name: name, Values: values}, nil
}

// columnLabels names the value columns of a variable: the bare name for a
// scalar, name[i] per component otherwise.
func columnLabels(name string, shape []int) []string {
	if len(shape) < 2 {
		return []string{name}
	}
	n := 1
	for _, s := range shape[1:] {
		n *= s
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%s[%d]", name, i)
	}
	return labels
}

func epochToTime(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// DecodeTabular parses the provider's line-oriented text container: "#"
// header lines carrying "KEY : value" metadata blocks, then
// whitespace-separated rows whose first column is seconds since the Unix
// epoch. When the header declares a parameter table, its bin centers
// become a secondary axis.
func DecodeTabular(data []byte, name string) (*Variable, error) {
	meta := make(map[string]string)
	var rows [][]float64

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if k, v, ok := headerField(line); ok {
				if _, dup := meta[k]; !dup {
					meta[k] = v
				}
			}
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, fv := range fields {
			val, err := strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, fmt.Errorf("impex: parsing %s row %d: %v", name, len(rows)+1, err)
			}
			row[i] = val
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("impex: reading %s: %v", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	width := len(rows[0]) - 1
	if width < 1 {
		return nil, fmt.Errorf("impex: %s has no value columns", name)
	}
	t := make([]time.Time, len(rows))
	values := sparse.ZerosDense(len(rows), width)
	for i, row := range rows {
		if len(row) != width+1 {
			return nil, fmt.Errorf("impex: %s row %d has %d columns, want %d",
				name, i+1, len(row), width+1)
		}
		t[i] = epochToTime(row[0])
		copy(values.Elements[i*width:(i+1)*width], row[1:])
	}

	if u, ok := meta["PARAMETER_UNITS"]; ok {
		meta["UNITS"] = u
	}
	v := &Variable{
		Name:   name,
		Time:   t,
		Values: values,
		Meta:   meta,
	}
	if cols, ok := meta["DATA_COLUMNS"]; ok {
		for _, c := range strings.Split(cols, ",")[1:] { // first column is time
			v.Columns = append(v.Columns, strings.TrimSpace(c))
		}
	} else {
		v.Columns = columnLabels(name, []int{len(rows), width})
	}
	if axis := tableAxis(meta); axis != nil {
		v.Axes = append(v.Axes, *axis)
	}
	return v, nil
}

func headerField(line string) (key, value string, ok bool) {
	body := strings.TrimLeft(line, "# ")
	i := strings.Index(body, ":")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(body[:i]), strings.TrimSpace(body[i+1:]), true
}

// tableAxis derives bin centers from the parameter table bounds declared
// in the header, when present.
func tableAxis(meta map[string]string) *Axis {
	for _, i := range []string{"0", "1"} {
		minKey := "PARAMETER_TABLE_MIN_VALUES[" + i + "]"
		maxKey := "PARAMETER_TABLE_MAX_VALUES[" + i + "]"
		if _, ok := meta[minKey]; !ok {
			continue
		}
		minV, err := parseFloatList(meta[minKey])
		if err != nil {
			return nil
		}
		maxV, err := parseFloatList(meta[maxKey])
		if err != nil || len(minV) != len(maxV) {
			return nil
		}
		centers := make([]float64, len(minV))
		floats.Add(centers, minV)
		floats.Add(centers, maxV)
		floats.Scale(0.5, centers)
		values := sparse.ZerosDense(len(centers))
		copy(values.Elements, centers)
		return &Axis{Name: meta["PARAMETER_TABLE["+i+"]"], Values: values}
	}
	return nil
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
