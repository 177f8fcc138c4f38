package market

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"hermes/internal/model"
)

// SecondarySourceSynthesizer derives the quote of a second venue from the
// primary quote of the same pair. Implementations only ever see the primary
// quote.
type SecondarySourceSynthesizer interface {
	Source() model.Source
	Synthesize(pair string, primary model.Quote) model.Quote
}

// priceScale matches the NUMERIC(30, 12) price columns.
const priceScale = 12

// RandomSpreadSynthesizer simulates a second venue by shifting bid and ask
// independently by a signed random fraction in [MinShift, MaxShift].
type RandomSpreadSynthesizer struct {
	MinShift float64
	MaxShift float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSpreadSynthesizer creates a synthesizer. A nil src uses a randomly
// seeded PCG source.
func NewRandomSpreadSynthesizer(minShift, maxShift float64, src rand.Source) *RandomSpreadSynthesizer {
	if minShift < 0 {
		minShift = -minShift
	}
	if maxShift < 0 {
		maxShift = -maxShift
	}
	if maxShift < minShift {
		minShift, maxShift = maxShift, minShift
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomSpreadSynthesizer{
		MinShift: minShift,
		MaxShift: maxShift,
		rng:      rand.New(src),
	}
}

func (s *RandomSpreadSynthesizer) Source() model.Source {
	return model.SourceSynthetic
}

func (s *RandomSpreadSynthesizer) Synthesize(pair string, primary model.Quote) model.Quote {
	s.mu.Lock()
	askShift := s.shift()
	bidShift := s.shift()
	s.mu.Unlock()

	return model.Quote{
		Bid: applyShift(primary.Bid, bidShift),
		Ask: applyShift(primary.Ask, askShift),
	}
}

// shift must be called with mu held.
func (s *RandomSpreadSynthesizer) shift() float64 {
	magnitude := s.MinShift + s.rng.Float64()*(s.MaxShift-s.MinShift)
	if s.rng.IntN(2) == 0 {
		return -magnitude
	}
	return magnitude
}

func applyShift(price decimal.Decimal, fraction float64) decimal.Decimal {
	shifted := price.Mul(decimal.NewFromFloat(1 + fraction)).Round(priceScale)
	if shifted.IsNegative() {
		return decimal.Zero
	}
	return shifted
}
