// Package clean converts raw extract records into canonical records ready
// for the upsert engine. Cleaning is a pure function of the input record and
// its entity definition: the same input always yields the same canonical
// record or the same rejection.
package clean

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/caliopendata/datasync/internal/catalog"
)

// Record is a canonical record: field name to a value of the declared
// semantic type, or nil where the field is nullable.
type Record map[string]any

// Rejection explains why a record could not be canonicalized. Rejections are
// counted, never raised; heterogeneous extract quality is the normal
// operating condition.
type Rejection struct {
	Field  string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("field %s: %s", r.Field, r.Reason)
}

// Clean maps one raw record to a canonical record per the entity definition.
// Fields absent from the definition are ignored; declared fields absent from
// the record are treated as null. A nil Rejection means the record is
// storable: every primary-key field is non-null and of its identifier type.
func Clean(raw map[string]any, def *catalog.Entity) (Record, *Rejection) {
	out := make(Record, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		val, rej := coerce(raw[f.Name], f, def.IsKey(f.Name))
		if rej != nil {
			return nil, rej
		}
		if val == nil && (def.IsKey(f.Name) || f.Required) {
			return nil, &Rejection{Field: f.Name, Reason: "required field is null after cleaning"}
		}
		out[f.Name] = val
	}
	return out, nil
}

func coerce(v any, f *catalog.Field, isKey bool) (any, *Rejection) {
	switch f.Type {
	case catalog.IntegerIdentifier:
		return coerceIdentifier(v, f.Name, isKey)
	case catalog.MonetaryAmount, catalog.DecimalMeasure:
		return coerceAmount(v, f.Accumulative), nil
	case catalog.Date:
		return coerceDate(v), nil
	case catalog.BooleanFlag:
		return coerceBool(v), nil
	case catalog.BoundedText:
		return coerceBoundedText(v), nil
	case catalog.FreeText:
		return coerceFreeText(v), nil
	default:
		return nil, &Rejection{Field: f.Name, Reason: fmt.Sprintf("unknown field type %q", f.Type)}
	}
}

// coerceIdentifier parses integer identifiers such as bpin codes. Extracts
// emit them as numbers, numeric strings, and numeric strings with a trailing
// ".0" left over from float round trips, so parsing goes float-then-truncate.
func coerceIdentifier(v any, field string, isKey bool) (any, *Rejection) {
	if isNullish(v) {
		if isKey {
			return nil, &Rejection{Field: field, Reason: "null identifier in primary key"}
		}
		return nil, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			if isKey {
				return nil, &Rejection{Field: field, Reason: "non-finite identifier in primary key"}
			}
			return nil, nil
		}
		return int64(n), nil
	case string:
		s := strings.TrimSpace(n)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if isKey {
				return nil, &Rejection{Field: field, Reason: fmt.Sprintf("non-numeric identifier %q in primary key", s)}
			}
			// Defensive fallback for non-key fields: pass through unchanged.
			return n, nil
		}
		return int64(parsed), nil
	default:
		if isKey {
			return nil, &Rejection{Field: field, Reason: fmt.Sprintf("identifier of unsupported type %T in primary key", v)}
		}
		return v, nil
	}
}

// coerceDate normalizes any parseable date representation to YYYY-MM-DD.
// Unparseable dates become null, never a rejection.
func coerceDate(v any) any {
	s, ok := v.(string)
	if !ok {
		if isNullish(v) {
			return nil
		}
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" || isNullWord(s) {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// coerceBool applies truthiness: null and empty stay null, everything else
// is true unless it is a zero number or false.
func coerceBool(v any) any {
	if isNullish(v) {
		return nil
	}
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return strings.TrimSpace(b) != ""
	default:
		return true
	}
}

// coerceBoundedText stringifies numeric inputs. Some extract sources emit
// numbers for fields the canonical schema treats as text (external codes),
// and downstream uniqueness and joins require consistent typing.
func coerceBoundedText(v any) any {
	if isNullish(v) {
		return nil
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func coerceFreeText(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return s
	}
	return v
}

// isNullish reports values that every coercion rule treats as absent: nil
// and the literal absence markers extract generators leave behind.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		t := strings.TrimSpace(s)
		return t == "" || isNullWord(t)
	}
	return false
}

func isNullWord(s string) bool {
	switch strings.ToLower(s) {
	case "none", "null", "nan":
		return true
	}
	return false
}
