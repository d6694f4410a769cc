package service

import (
	crand "crypto/rand"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"KirveHubBot/internal/models"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler выбирает победителей взвешенной выборкой без возвращения.
// При одинаковом seed результат воспроизводим.
type Sampler struct {
	mu      sync.Mutex
	uniform distuv.Uniform
}

// NewSampler создает выборку с детерминированным источником
func NewSampler(seed uint64) *Sampler {
	return &Sampler{uniform: distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}}
}

// NewCryptoSampler создает выборку с криптографически случайным seed
func NewCryptoSampler() *Sampler {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return &Sampler{uniform: distuv.Uniform{Min: 0, Max: 1, Src: rand.NewChaCha8(seed)}}
}

func (s *Sampler) draw() float64 {
	for {
		if u := s.uniform.Rand(); u > 0 {
			return u
		}
	}
}

type sampleKey struct {
	participant models.EventParticipant
	key         float64
}

// Select возвращает k победителей в порядке выбора. Ключ участника ln(u)/w эквивалентен u^(1/w);
// при равных ключах выигрывает присоединившийся раньше. Если все веса нулевые, выборка равномерная.
func (s *Sampler) Select(participants []models.EventParticipant, k int) []models.EventParticipant {
	if k > len(participants) {
		k = len(participants)
	}
	if k <= 0 {
		return nil
	}

	uniform := true
	for _, p := range participants {
		if p.PaymentAmount.IsPositive() {
			uniform = false
			break
		}
	}

	s.mu.Lock()
	keys := make([]sampleKey, len(participants))
	for i, p := range participants {
		u := s.draw()
		key := math.Inf(-1)
		switch {
		case uniform:
			key = u
		case p.PaymentAmount.IsPositive():
			key = math.Log(u) / p.PaymentAmount.InexactFloat64()
		}
		keys[i] = sampleKey{participant: p, key: key}
	}
	s.mu.Unlock()

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].key != keys[j].key {
			return keys[i].key > keys[j].key
		}
		return keys[i].participant.JoinedAt.Before(keys[j].participant.JoinedAt)
	})

	winners := make([]models.EventParticipant, k)
	for i := range winners {
		winners[i] = keys[i].participant
	}
	return winners
}

// SplitPool делит пул на n долей с точностью до копейки. Остаток раздается
// по 0.01 первым победителям, поэтому сумма долей равна пулу.
func SplitPool(pool decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}

	share := pool.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	remainder := pool.Sub(share.Mul(decimal.NewFromInt(int64(n))))
	cent := decimal.New(1, -2)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = share
		if remainder.IsPositive() {
			shares[i] = shares[i].Add(cent)
			remainder = remainder.Sub(cent)
		}
	}
	return shares
}
