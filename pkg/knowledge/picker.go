package knowledge

import (
	"math/rand"
	"sync"
	"time"
)

// Picker is the single source of randomness the responder uses to draw from
// response pools. Tests inject a deterministic implementation.
type Picker interface {
	// Pick returns an index in [0, n). n is always >= 1.
	Pick(n int) int
}

type randPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Picker = &randPicker{}

// NewPicker returns a time-seeded Picker.
func NewPicker() Picker {
	return NewSeededPicker(time.Now().UnixNano())
}

// NewSeededPicker returns a Picker with a fixed seed for reproducible draws.
func NewSeededPicker(seed int64) Picker {
	return &randPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *randPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}
