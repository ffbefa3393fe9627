package integrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deliverysync/internal/model"
)

// DefaultWeightKg stands in for an order whose items carry no weight.
var DefaultWeightKg = decimal.NewFromInt(1)

// Doc is a loosely typed JSON object. Getters return zero values for absent or
// mistyped fields so adapters can substitute defaults instead of failing.
type Doc map[string]any

// ParseDoc decodes an object keeping numbers exact.
func ParseDoc(raw []byte) (Doc, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var d Doc
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("order document is not an object")
	}
	return d, nil
}

// Str returns the first non-empty value among keys, rendering numbers as text.
func (d Doc) Str(keys ...string) string {
	for _, k := range keys {
		switch v := d[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func (d Doc) Num(keys ...string) decimal.Decimal {
	for _, k := range keys {
		s := d.Str(k)
		if s == "" {
			continue
		}
		if n, err := decimal.NewFromString(s); err == nil {
			return n
		}
	}
	return decimal.Zero
}

func (d Doc) Int(key string, def int) int {
	n := d.Num(key)
	if n.IsZero() {
		return def
	}
	return int(n.IntPart())
}

func (d Doc) Bool(key string) bool {
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case json.Number:
		return v.String() != "0"
	}
	return false
}

// Obj returns a nested object, or an empty Doc.
func (d Doc) Obj(key string) Doc {
	if m, ok := d[key].(map[string]any); ok {
		return Doc(m)
	}
	return Doc{}
}

func (d Doc) List(key string) []Doc {
	arr, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Doc, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, Doc(m))
		}
	}
	return out
}

func (d Doc) Empty() bool { return len(d) == 0 }

// JoinName joins first and last names.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// FormatAddress joins non-empty address lines with newlines. City and region share a line.
func FormatAddress(line1, line2, city, region, postal, country string) string {
	cityLine := city
	if region != "" {
		if cityLine != "" {
			cityLine += ", "
		}
		cityLine += region
	}
	var parts []string
	for _, p := range []string{line1, line2, cityLine, postal, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// TotalWeight sums per-unit weights times quantities. DefaultWeightKg stands in for
// the whole order only when no item carries a weight; in a mixed order the
// unweighted items count as zero.
func TotalWeight(items []model.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.WeightKg.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if total.IsPositive() {
		return total
	}
	return DefaultWeightKg
}

// Describe builds a short package description naming at most three items.
func Describe(label, number string, items []model.LineItem) string {
	var names []string
	for i, it := range items {
		if i == 3 {
			break
		}
		names = append(names, it.Name)
	}
	desc := fmt.Sprintf("%s #%s", label, number)
	if len(names) > 0 {
		desc += " - " + strings.Join(names, ", ")
	}
	if len(items) > 3 {
		desc += fmt.Sprintf(" and %d more items", len(items)-3)
	}
	return desc
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseTime accepts the common platform timestamp layouts. Zone-less values are UTC.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
