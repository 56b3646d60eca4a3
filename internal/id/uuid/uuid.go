// Package uuid provides ID generation helpers.
package uuid

import "github.com/google/uuid"

// Generator creates random task ids.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a random UUIDv4.
func (Generator) NewID() uuid.UUID {
	return uuid.New()
}
