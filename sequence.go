package numguess

import (
	"math/rand/v2"
	"sync"
)

// Sequencer produces guess sequences. Each sequence is a uniformly random permutation of the range, built by
// shuffling the full range (Fisher-Yates), so a sequence can never repeat a guess or miss one.
//
// A Sequencer is safe for concurrent use.
type Sequencer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSequencer returns a Sequencer with a reproducible stream for the seed.
func NewSequencer(seed uint64) *Sequencer {
	return &Sequencer{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), // #nosec G404 -- guess order needs no cryptographic randomness
	}
}

// Generate returns a new permutation of r.
func (s *Sequencer) Generate(r Range) ([]int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	seq := r.Values()

	if s == nil || s.rng == nil {
		rand.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] }) // #nosec G404
		return seq, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })
	return seq, nil
}

// GenerateSequence returns a permutation of r drawn from the global random source.
func GenerateSequence(r Range) ([]int, error) {
	var s *Sequencer
	return s.Generate(r)
}
