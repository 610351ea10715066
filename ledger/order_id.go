package ledger

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"
)

const randomSpace = 1_000_000

// IDGenerator mints human-readable order ids: "ORD", a unix-millisecond
// component that never repeats within the process, then six random digits.
type IDGenerator struct {
	mu     sync.Mutex
	last   int64
	now    func() time.Time
	random io.Reader
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now, random: rand.Reader}
}

func (g *IDGenerator) Next() (string, error) {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	n, err := rand.Int(g.random, big.NewInt(randomSpace))
	if err != nil {
		return "", fmt.Errorf("order id entropy: %w", err)
	}
	return fmt.Sprintf("ORD%d%06d", ms, n.Int64()), nil
}
