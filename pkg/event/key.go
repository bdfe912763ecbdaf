package event

import (
	"fmt"
	"sort"

	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// Key identifies an event inside a repository index
type Key struct {
	ID          uint8
	Kind        types.EventKind
	PayloadType wire.Code
	Provider    types.Address
}

// Compare orders keys field by field, lowest field first
func (k Key) Compare(o Key) int {
	switch {
	case k.ID != o.ID:
		return cmp(int(k.ID), int(o.ID))
	case k.Kind != o.Kind:
		return cmp(int(k.Kind), int(o.Kind))
	case k.PayloadType != o.PayloadType:
		return cmp(int(k.PayloadType), int(o.PayloadType))
	default:
		return k.Provider.Compare(o.Provider)
	}
}

// Less reports whether k sorts before o
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d@%s", k.PayloadType, k.Kind, k.ID, k.Provider)
}

// SortKeys sorts keys in place
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
