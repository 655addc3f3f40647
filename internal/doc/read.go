package doc

import (
	"fmt"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/pathexpr"
)

// Reads never coerce: requesting the wrong variant is api.ErrTypeMismatch,
// an absent path is api.ErrNotFound.

// GetText returns the text value at path.
func (d *Document) GetText(path string) (string, error) {
	reg, err := d.read(path, api.KindText)
	if err != nil {
		return "", err
	}
	return d.materializeText(d.objects[reg.id]), nil
}

// GetInt returns the integer value at path.
func (d *Document) GetInt(path string) (int64, error) {
	reg, err := d.read(path, api.KindInt)
	if err != nil {
		return 0, err
	}
	return reg.val.Int, nil
}

// GetDouble returns the double value at path.
func (d *Document) GetDouble(path string) (float64, error) {
	reg, err := d.read(path, api.KindDouble)
	if err != nil {
		return 0, err
	}
	return reg.val.Double, nil
}

// GetBool returns the boolean value at path.
func (d *Document) GetBool(path string) (bool, error) {
	reg, err := d.read(path, api.KindBool)
	if err != nil {
		return false, err
	}
	return reg.val.Bool, nil
}

func (d *Document) read(path string, want api.Kind) (register, error) {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return register{}, err
	}
	reg, err := d.valueAt(segs)
	if err != nil {
		return register{}, err
	}
	if reg.val.Kind != want {
		return register{}, fmt.Errorf("path %q: node is %s, want %s: %w",
			pathexpr.Format(segs), reg.val.Kind, want, api.ErrTypeMismatch)
	}
	return reg, nil
}

// ListLen returns the number of live elements in the list at path.
func (d *Document) ListLen(path string) (int, error) {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return 0, err
	}
	o, err := d.resolveObject(segs)
	if err != nil {
		return 0, err
	}
	if o.kind != api.KindList {
		return 0, fmt.Errorf("path %q: %s is not a list: %w",
			pathexpr.Format(segs), o.kind, api.ErrTypeMismatch)
	}
	return len(o.visible()), nil
}
