package util

import "github.com/google/uuid"

// NewID generates a new unique identifier for thinkers.
func NewID() string { return uuid.NewString() }
