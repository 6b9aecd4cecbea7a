package miasm

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/immutable"
)

// locInfo holds the registry metadata for one location key.
type locInfo struct {
	name      string
	offset    uint64
	hasOffset bool
}

// LocationDB allocates location keys and owns their name/offset metadata.
// The expression core treats keys as opaque; the registry exists so callers
// can round-trip symbolic locations to human-readable names. Safe for
// concurrent use.
type LocationDB struct {
	mu     sync.Mutex
	next   LocKey
	byKey  *immutable.SortedMap
	byName map[string]LocKey
}

// NewLocationDB returns an empty location registry.
func NewLocationDB() *LocationDB {
	return &LocationDB{
		byKey:  immutable.NewSortedMap(&locKeyComparer{}),
		byName: make(map[string]LocKey),
	}
}

// Alloc allocates a new location key. name may be empty; a non-empty name
// must be unique within the registry.
func (db *LocationDB) Alloc(name string) (LocKey, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if name != "" {
		if _, ok := db.byName[name]; ok {
			return 0, fmt.Errorf("location name already registered: %q", name)
		}
	}

	key := db.next
	db.next++
	db.byKey = db.byKey.Set(uint64(key), locInfo{name: name})
	if name != "" {
		db.byName[name] = key
	}
	return key, nil
}

// Name returns the registered name for key.
func (db *LocationDB) Name(key LocKey) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	info, ok := db.get(key)
	if !ok || info.name == "" {
		return "", false
	}
	return info.name, true
}

// Resolve returns the key registered under name.
func (db *LocationDB) Resolve(name string) (LocKey, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, ok := db.byName[name]
	return key, ok
}

// SetOffset records the concrete offset of key.
func (db *LocationDB) SetOffset(key LocKey, offset uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	info, ok := db.get(key)
	if !ok {
		return fmt.Errorf("unknown location key: %d", uint64(key))
	}
	info.offset = offset
	info.hasOffset = true
	db.byKey = db.byKey.Set(uint64(key), info)
	return nil
}

// Offset returns the concrete offset of key, if one was recorded.
func (db *LocationDB) Offset(key LocKey) (uint64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	info, ok := db.get(key)
	if !ok || !info.hasOffset {
		return 0, false
	}
	return info.offset, true
}

// Keys returns all allocated keys in increasing order.
func (db *LocationDB) Keys() []LocKey {
	db.mu.Lock()
	defer db.mu.Unlock()

	keys := make([]LocKey, 0, db.byKey.Len())
	itr := db.byKey.Iterator()
	for !itr.Done() {
		k, _ := itr.Next()
		keys = append(keys, LocKey(k.(uint64)))
	}
	return keys
}

func (db *LocationDB) get(key LocKey) (locInfo, bool) {
	v, ok := db.byKey.Get(uint64(key))
	if !ok {
		return locInfo{}, false
	}
	return v.(locInfo), true
}

// ExprString renders expr with named locations printed by name instead of
// the loc_key default form. The tree itself is not modified.
func (db *LocationDB) ExprString(expr Expr) string {
	mapping := make(map[Expr]Expr)
	Walk(expr, func(e Expr) bool {
		if loc, ok := e.(*LocExpr); ok {
			if name, ok := db.Name(loc.Key); ok {
				mapping[loc] = NewIdExpr(name, loc.Size)
			}
		}
		return true
	})
	if len(mapping) == 0 {
		return expr.String()
	}
	return ReplaceExpr(expr, mapping).String()
}

// locKeyComparer orders uint64 location keys. Implements immutable.Comparer.
type locKeyComparer struct{}

// Compare returns -1 if a is less than b, 1 if greater, and 0 if equal.
// Panics if a or b is not a uint64.
func (c *locKeyComparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
