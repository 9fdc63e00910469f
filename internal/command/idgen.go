package command

import "github.com/google/uuid"

// generateID produces a time-ordered, K-sortable UUIDv7 for new aggregate
// ids, falling back to v4 on the (practically never) error path.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
