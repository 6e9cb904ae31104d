package models

import "strconv"

// Identity is the authenticated caller on whose behalf an operation runs.
type Identity struct {
	Username string `json:"username" validate:"required"`
	Group    string `json:"group"    validate:"required"`
}

// Owns reports whether the execution belongs to the identity's group.
func (i Identity) Owns(execution *Execution) bool {
	return execution != nil && execution.Group == i.Group
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
