// Package camera maps dashcam model names to the layout of the telemetry
// records they write.
package camera

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ktkr.us/pkg/dashcam"
)

// Format identifies a telemetry record layout.
type Format int

const (
	Unsupported Format = iota
	VariantA           // 284 byte records, 32-bit acceleration (322GW, 422GW, 522GW)
	VariantB           // 1042 byte records, 16-bit acceleration (622GW)
)

func (f Format) String() string {
	switch f {
	case Unsupported:
		return "unsupported"
	case VariantA:
		return "a"
	case VariantB:
		return "b"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// Decodable reports whether records in format f can be decoded.
func (f Format) Decodable() bool {
	return f == VariantA || f == VariantB
}

// ParseFormat parses the String form of a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "unsupported", "none", "":
		return Unsupported, nil
	case "a":
		return VariantA, nil
	case "b":
		return VariantB, nil
	}
	return Unsupported, errors.Wrapf(dashcam.ErrUnsupportedFormat, "unknown format %q", s)
}

// Models that are recognized. Names are matched exactly.
var formats = map[string]Format{
	"212G":   Unsupported,
	"222G":   Unsupported,
	"222GX":  Unsupported,
	"312G":   Unsupported,
	"312GW":  Unsupported,
	"300W":   Unsupported,
	"380GW":  Unsupported,
	"380GWX": Unsupported,
	"412GW":  Unsupported,
	"512GW":  Unsupported,
	"612GW":  Unsupported,
	"MIRGW":  Unsupported,
	"DUOHD":  Unsupported,
	"DUO":    Unsupported, // same as DUOHD
	"402G":   Unsupported,
	"RIDE":   Unsupported, // same as 402G
	"512G":   Unsupported,

	"322GW": VariantA,
	"422GW": VariantA,
	"522GW": VariantA,

	"622GW": VariantB,
}

// Registry is the model table plus any extra entries supplied by the caller.
// A nil *Registry is the built-in table alone.
type Registry struct {
	extra map[string]Format
}

// NewRegistry returns a registry where the entries in extra take precedence
// over the built-in table.
func NewRegistry(extra map[string]Format) *Registry {
	r := &Registry{extra: make(map[string]Format, len(extra))}
	for name, f := range extra {
		r.extra[name] = f
	}
	return r
}

// Lookup returns the format for a model name. Unknown names are Unsupported.
func (r *Registry) Lookup(name string) Format {
	f, _ := r.lookup(name)
	return f
}

// Known reports whether name is in the table at all, decodable or not.
func (r *Registry) Known(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Registry) IsSupported(name string) bool {
	return r.Lookup(name).Decodable()
}

func (r *Registry) lookup(name string) (Format, bool) {
	if r != nil {
		if f, ok := r.extra[name]; ok {
			return f, true
		}
	}
	f, ok := formats[name]
	return f, ok
}

// Lookup returns the format for a model name using the built-in table.
func Lookup(name string) Format {
	return (*Registry)(nil).Lookup(name)
}

// IsSupported reports whether telemetry from the model can be decoded.
func IsSupported(name string) bool {
	return (*Registry)(nil).IsSupported(name)
}
