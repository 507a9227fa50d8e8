package model

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 12-hex-char identifier for events, incidents, and runs.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}
