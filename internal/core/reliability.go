package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Common reliability tiers.
const (
	ReliabilityCertain = 100
	ReliabilityLikely  = 75
)

// Reliability is an optional integer confidence tier. The zero value is
// "not defined"; Int reports 0 for it.
type Reliability struct {
	value   int
	defined bool
}

// NewReliability returns a defined tier.
func NewReliability(v int) Reliability {
	return Reliability{value: v, defined: true}
}

// ParseReliability parses a tier from text. Blank or unparseable input
// yields an undefined tier.
func ParseReliability(s string) Reliability {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return Reliability{}
	}
	if v, err := strconv.Atoi(s); err == nil {
		return NewReliability(v)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return NewReliability(int(f))
	}
	return Reliability{}
}

// Defined reports whether a tier was set.
func (r Reliability) Defined() bool { return r.defined }

// Int returns the tier, 0 when undefined.
func (r Reliability) Int() int {
	if !r.defined {
		return 0
	}
	return r.value
}

// Is reports whether the tier is defined and equal to v.
func (r Reliability) Is(v int) bool {
	return r.defined && r.value == v
}

func (r Reliability) String() string {
	if !r.defined {
		return ""
	}
	return strconv.Itoa(r.value)
}

// UnmarshalJSON accepts numbers, numeric strings and null. Anything else
// decodes to an undefined tier rather than failing the document.
func (r *Reliability) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Reliability{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*r = Reliability{}
			return nil
		}
		*r = ParseReliability(s)
		return nil
	}
	*r = ParseReliability(string(data))
	return nil
}

func (r Reliability) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(r.value)), nil
}

