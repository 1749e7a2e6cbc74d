package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	seq int64
	doc map[string]any
}

// toDocument JSON-encodes v into an object and assigns an id if missing.
func toDocument(v any) (map[string]any, string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("storage: encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, "", fmt.Errorf("storage: document must encode to a JSON object: %w", err)
	}
	if m == nil {
		return nil, "", fmt.Errorf("storage: document must encode to a JSON object")
	}
	id, _ := m[FieldID].(string)
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
		m[FieldID] = id
	}
	return m, id, nil
}

// normalizeValue gives a filter value the same shape a stored value has.
func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func normalizeFilter(f map[string]any) (map[string]any, error) {
	if len(f) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(f))
	for k, v := range f {
		if !validField(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
		out[k] = normalizeValue(v)
	}
	return out, nil
}

func matches(doc, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// parseSort splits "-field" into (field, desc). "" and "-" mean insertion order.
func parseSort(s string) (field string, desc bool, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		desc = true
		s = s[1:]
	}
	if s != "" && !validField(s) {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
	return s, desc, nil
}

func sortEntries(es []entry, field string, desc bool) {
	sort.SliceStable(es, func(i, j int) bool {
		c := 0
		if field != "" {
			c = compareValues(es[i].doc[field], es[j].doc[field])
		}
		if c == 0 {
			c = cmpInt64(es[i].seq, es[j].seq)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			tx, errx := time.Parse(time.RFC3339Nano, x)
			ty, erry := time.Parse(time.RFC3339Nano, y)
			if errx == nil && erry == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// decodeInto re-encodes docs into the caller's slice type.
func decodeInto(docs []map[string]any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("storage: out must be a non-nil pointer to a slice, got %T", out)
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("storage: encode result: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("storage: decode result: %w", err)
	}
	return nil
}

// validName accepts [A-Za-z0-9_]{1,128}. Field and collection names end up
// in SQL paths and Mongo keys, so nothing else is allowed.
func validName(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func validCollection(s string) bool { return validName(s) }

func validField(s string) bool { return validName(s) }

// seqGen hands out strictly increasing insertion sequences based on the wall
// clock so ordering survives restarts of the file and sqlite drivers.
type seqGen struct{ last atomic.Int64 }

func (g *seqGen) next() int64 {
	for {
		prev := g.last.Load()
		n := time.Now().UnixNano()
		if n <= prev {
			n = prev + 1
		}
		if g.last.CompareAndSwap(prev, n) {
			return n
		}
	}
}

// observe moves the generator past a sequence loaded from disk.
func (g *seqGen) observe(seq int64) {
	for {
		prev := g.last.Load()
		if seq <= prev || g.last.CompareAndSwap(prev, seq) {
			return
		}
	}
}
