package engine

import (
	"strconv"

	"github.com/google/uuid"
)

// IDGenerator hands out name-based UUIDs derived from a seed name and a
// counter, so two runs seeded with the same name produce the same ids.
type IDGenerator struct {
	namespace uuid.UUID
	n         uint64
}

// NewIDGenerator returns a generator seeded by name.
func NewIDGenerator(name string) *IDGenerator {
	return &IDGenerator{namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))}
}

// Next returns the next id in the sequence.
func (g *IDGenerator) Next() string {
	g.n++
	return uuid.NewSHA1(g.namespace, strconv.AppendUint(nil, g.n, 10)).String()
}
