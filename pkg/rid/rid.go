// Package rid defines the record identifier shared by the index and
// transaction packages: a page id plus a slot number within that page.
package rid

import (
	"fmt"

	"github.com/mnohosten/laura-core/pkg/storage"
)

// RID identifies a tuple's physical slot: the page it lives on and its
// index within that page's slot array. It is the value type the B+-Tree
// index stores in its leaves and the Lock Manager keys its lock table by.
type RID struct {
	PageID storage.PageID
	Slot   uint32
}

// Invalid is the zero value of RID with an invalid page id, used as a
// not-found sentinel by callers that cannot return an (RID, bool) pair.
var Invalid = RID{PageID: storage.InvalidPageID}

// String renders an RID as "page:slot", used in log lines and error
// messages.
func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}

// IsValid reports whether r refers to a real page.
func (r RID) IsValid() bool {
	return r.PageID != storage.InvalidPageID
}
