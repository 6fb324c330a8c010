package book

import (
	"math/rand"

	"github.com/google/uuid"
)

// IDSource generates UUIDs from a seeded stream so that identical runs
// produce identical order and trade ids.
type IDSource struct {
	rng *rand.Rand
}

func NewIDSource(seed int64) *IDSource {
	return &IDSource{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh UUID string.
func (s *IDSource) Next() string {
	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		// math/rand reads cannot fail; keep uuid's fallback anyway.
		return uuid.New().String()
	}
	return id.String()
}
