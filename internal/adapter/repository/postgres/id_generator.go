package postgres

import (
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates ULID-based IDs. IDs are roughly time ordered but
// are assigned before commit, so nothing may read them as commit order.
type ULIDGenerator struct{}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate returns a new monotonic ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}
