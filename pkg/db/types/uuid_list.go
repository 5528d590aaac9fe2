package types

import "github.com/google/uuid"

// UUIDList is an ordered set of identifiers persisted as a JSON column.
type UUIDList []uuid.UUID

// Contains reports whether id is present in the list.
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, candidate := range l {
		if candidate == id {
			return true
		}
	}
	return false
}

// Strings renders the list for logging.
func (l UUIDList) Strings() []string {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = id.String()
	}
	return out
}
