package stream

import "strings"

// designPrefix marks source-internal metadata documents.
const designPrefix = "_design"

// ChangeEvent is a single entry of the source change feed. Seq is opaque and
// only ever compared for equality.
type ChangeEvent struct {
	ID      string
	Seq     string
	Doc     map[string]interface{}
	Deleted bool
}

// IsDesignDocument reports whether the change concerns a design document.
// Design documents are never replicated.
func (e ChangeEvent) IsDesignDocument() bool {
	return strings.HasPrefix(e.ID, designPrefix)
}
