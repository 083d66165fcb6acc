package codec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecseg/model"
)

// ErrUnsupportedValue is returned for metadata values that are not scalars.
var ErrUnsupportedValue = errors.New("codec: unsupported metadata value")

// scalar keeps the Go type of a metadata value across a JSON round trip.
type scalar struct {
	S *string  `json:"s,omitempty"`
	I *int64   `json:"i,omitempty"`
	F *float64 `json:"f,omitempty"`
	B *bool    `json:"b,omitempty"`
}

func toScalar(v any) (scalar, error) {
	switch x := v.(type) {
	case string:
		return scalar{S: &x}, nil
	case int:
		i := int64(x)
		return scalar{I: &i}, nil
	case int32:
		i := int64(x)
		return scalar{I: &i}, nil
	case int64:
		return scalar{I: &x}, nil
	case float32:
		f := float64(x)
		return scalar{F: &f}, nil
	case float64:
		return scalar{F: &x}, nil
	case bool:
		return scalar{B: &x}, nil
	default:
		return scalar{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func (s scalar) value() (any, bool) {
	switch {
	case s.S != nil:
		return *s.S, true
	case s.I != nil:
		return *s.I, true
	case s.F != nil:
		return *s.F, true
	case s.B != nil:
		return *s.B, true
	default:
		return nil, false
	}
}

// MarshalMetadata encodes metadata so that integers, floats, strings and
// booleans decode to int64, float64, string and bool respectively.
// Nil or empty metadata encodes as nil.
func MarshalMetadata(c Codec, md model.Metadata) ([]byte, error) {
	if len(md) == 0 {
		return nil, nil
	}
	if c == nil {
		c = Default
	}
	out := make(map[string]scalar, len(md))
	for k, v := range md {
		s, err := toScalar(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = s
	}
	return c.Marshal(out)
}

// UnmarshalMetadata decodes data written by MarshalMetadata.
// Empty data decodes to nil.
func UnmarshalMetadata(c Codec, data []byte) (model.Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if c == nil {
		c = Default
	}
	var in map[string]scalar
	if err := c.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, nil
	}
	md := make(model.Metadata, len(in))
	for k, s := range in {
		v, ok := s.value()
		if !ok {
			return nil, fmt.Errorf("key %q: %w", k, ErrUnsupportedValue)
		}
		md[k] = v
	}
	return md, nil
}
