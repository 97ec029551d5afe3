package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mask is a set of event kinds.
type Mask uint8

var kindBits = map[Kind]Mask{
	Start:         1 << 0,
	Success:       1 << 1,
	Fail:          1 << 2,
	Skip:          1 << 3,
	Finish:        1 << 4,
	SuiteStart:    1 << 5,
	SuiteComplete: 1 << 6,
}

// Default masks applied when a spec declares none.
var (
	DefaultItemMask  = MaskOf(Fail)
	DefaultSuiteMask = MaskOf(SuiteComplete)
)

func MaskOf(kinds ...Kind) Mask {
	var m Mask
	for _, k := range kinds {
		m |= kindBits[k]
	}
	return m
}

// ParseMask parses kind names; an empty list yields an empty mask.
func ParseMask(names []string) (Mask, error) {
	var m Mask
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return 0, err
		}
		m |= kindBits[k]
	}
	return m, nil
}

func (m Mask) Has(k Kind) bool { return m&kindBits[k] != 0 }

func (m Mask) Empty() bool { return m == 0 }

func (m Mask) Kinds() []Kind {
	out := make([]Kind, 0, len(Kinds))
	for _, k := range Kinds {
		if m.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (m Mask) String() string {
	ks := m.Kinds()
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = string(k)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (m Mask) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(Kinds))
	for _, k := range m.Kinds() {
		names = append(names, string(k))
	}
	return json.Marshal(names)
}

func (m *Mask) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("event mask: %w", err)
	}
	parsed, err := ParseMask(names)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ShouldEmit is the event filter: pure set membership.
func ShouldEmit(k Kind, m Mask) bool { return m.Has(k) }

// DefaultMask returns the mask used when no scope declares one.
func DefaultMask(suite bool) Mask {
	if suite {
		return DefaultSuiteMask
	}
	return DefaultItemMask
}
