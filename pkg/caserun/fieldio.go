package caserun

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/highesttt/fieldpal/pkg/field"
)

// Field files hold the internal cell values and the boundary patches in
// document order:
//
//	{"internalField": [[1, 0, 0], ...], "boundaryField": {"inlet": [...], ...}}
//
// Scalar fields may list plain numbers instead of one-element rows.
const (
	keyInternal = "internalField"
	keyBoundary = "boundaryField"
)

func loadVolume(name, path string, comps int) (*field.Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field %s: %w", name, err)
	}
	return readVolume(name, data, comps)
}

// readVolume parses a field file. A comps of 0 takes the component count
// from the first non-empty row in the file.
func readVolume(name string, data []byte, comps int) (*field.Volume, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("field %s: invalid JSON", name)
	}
	doc := gjson.ParseBytes(data)
	internal := doc.Get(keyInternal)
	if !internal.IsArray() {
		return nil, fmt.Errorf("field %s: %s must be an array", name, keyInternal)
	}
	boundary := doc.Get(keyBoundary)
	if boundary.Exists() && !boundary.IsObject() {
		return nil, fmt.Errorf("field %s: %s must be an object", name, keyBoundary)
	}
	if comps == 0 {
		comps = inferComponents(internal)
		boundary.ForEach(func(_, patch gjson.Result) bool {
			if comps == 0 {
				comps = inferComponents(patch)
			}
			return comps == 0
		})
		if comps == 0 {
			comps = 1
		}
	}

	vol := &field.Volume{Name: name}
	var err error
	if vol.Internal, err = readValues(internal, comps); err != nil {
		return nil, fmt.Errorf("field %s: %s: %w", name, keyInternal, err)
	}
	boundary.ForEach(func(key, patch gjson.Result) bool {
		var values field.Flat
		if values, err = readValues(patch, comps); err != nil {
			err = fmt.Errorf("field %s: patch %s: %w", name, key.String(), err)
			return false
		}
		vol.Patches = append(vol.Patches, field.Patch{Name: key.String(), Values: values})
		return true
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}

func inferComponents(values gjson.Result) int {
	first := values.Get("0")
	switch {
	case first.Type == gjson.Number:
		return 1
	case first.IsArray():
		return len(first.Array())
	}
	return 0
}

func readValues(values gjson.Result, comps int) (field.Flat, error) {
	if !values.IsArray() {
		return field.Flat{}, fmt.Errorf("expected an array, got %s", values.Type)
	}
	rows := values.Array()
	out := field.NewFlat(len(rows), comps)
	for i, row := range rows {
		if comps == 1 && row.Type == gjson.Number {
			out.Data[i] = row.Float()
			continue
		}
		if !row.IsArray() {
			return field.Flat{}, fmt.Errorf("row %d: expected %d values, got %s", i, comps, row.Type)
		}
		items := row.Array()
		if len(items) != comps {
			return field.Flat{}, fmt.Errorf("row %d: expected %d values, got %d", i, comps, len(items))
		}
		for j, item := range items {
			if item.Type != gjson.Number {
				return field.Flat{}, fmt.Errorf("row %d: value %d is %s, not a number", i, j, item.Type)
			}
			out.Data[i*comps+j] = item.Float()
		}
	}
	return out, nil
}

func writeVolume(vol *field.Volume) ([]byte, error) {
	out, err := sjson.SetBytes([]byte("{}"), keyInternal, jsonRows(vol.Internal))
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, keyBoundary, []byte("{}")); err != nil {
		return nil, err
	}
	for _, p := range vol.Patches {
		out, err = sjson.SetBytes(out, keyBoundary+"."+escapeKey(p.Name), jsonRows(p.Values))
		if err != nil {
			return nil, fmt.Errorf("patch %s: %w", p.Name, err)
		}
	}
	return out, nil
}

func saveVolume(vol *field.Volume, path string) error {
	data, err := writeVolume(vol)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", vol.Name, err)
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write field %s: %w", vol.Name, err)
	}
	return nil
}

// jsonRows never returns nil so empty patches are written as [] rather
// than null.
func jsonRows(f field.Flat) any {
	n := f.Len()
	if f.Comps == 1 {
		return append(make([]float64, 0, n), f.Values()...)
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = f.Row(i)
	}
	return rows
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`:`, `\:`,
)

func escapeKey(key string) string {
	return keyEscaper.Replace(key)
}
