package artifact

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Source is the randomness behind identifiers and simulated outcomes.
type Source interface {
	Float64() float64
	IntN(n int) int
	Uint64() uint64
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource seeds from crypto/rand.
func NewSource() Source {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return &lockedSource{r: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededSource is reproducible for a given seed.
func NewSeededSource(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64()
}

// FixedSource returns the same roll every time. Tests use it to force an
// approve or decline.
type FixedSource struct {
	Roll float64
}

func (f FixedSource) Float64() float64 { return f.Roll }

func (f FixedSource) IntN(n int) int { return int(f.Roll*float64(n)) % n }

func (f FixedSource) Uint64() uint64 { return uint64(f.Roll * (1 << 53)) }

func randomBytes(src Source, n int) []byte {
	buf := make([]byte, 0, n+8)
	for len(buf) < n {
		buf = binary.BigEndian.AppendUint64(buf, src.Uint64())
	}
	return buf[:n]
}
