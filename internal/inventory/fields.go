package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// optInt accepts a JSON number or a numeric string and remembers whether the
// field was present.
type optInt struct {
	Set   bool
	Null  bool
	Value int
}

func (o *optInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		o.Null = true
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			o.Null = true
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int(f)) {
		return fmt.Errorf("expected a whole number, got %s", string(data))
	}
	o.Value = int(f)
	return nil
}

// Ptr returns nil when the field was absent or empty.
func (o optInt) Ptr() *int {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// optString distinguishes an absent field from an explicit null or "".
type optString struct {
	Set   bool
	Null  bool
	Value string
}

func (o *optString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		o.Null = true
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	if strings.TrimSpace(o.Value) == "" {
		o.Null = true
	}
	return nil
}
