package stats

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a metric result that may be "not available". NaN and ±Inf
// never survive construction; they become NA.
type Value struct {
	v  float64
	ok bool
}

// NA is the not-available marker.
var NA = Value{}

// Float wraps x, mapping non-finite input to NA.
func Float(x float64) Value {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return NA
	}
	return Value{v: x, ok: true}
}

// Valid reports whether the value is available.
func (v Value) Valid() bool { return v.ok }

// Float64 returns the number and whether it is available.
func (v Value) Float64() (float64, bool) { return v.v, v.ok }

// Or returns the number, or def when not available.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

// Format renders with prec decimals, or na when not available.
// Negative zero is printed as zero.
func (v Value) Format(prec int, na string) string {
	if !v.ok {
		return na
	}
	s := strconv.FormatFloat(v.v, 'f', prec, 64)
	if s[0] == '-' {
		if z, err := strconv.ParseFloat(s, 64); err == nil && z == 0 {
			s = s[1:]
		}
	}
	return s
}

func (v Value) String() string { return v.Format(6, "N/A") }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = NA
		return nil
	}
	var x float64
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*v = Float(x)
	return nil
}

// Table holds one series' metrics.
type Table map[Key]Value

// Get returns the value for k, NA when absent.
func (t Table) Get(k Key) Value {
	if v, ok := t[k]; ok {
		return v
	}
	return NA
}
