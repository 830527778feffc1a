// Package id generates ULIDs for order numbers and run identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces monotonic ULIDs from its own entropy source.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
}

// NewGenerator seeds the entropy with seed. Equal seeds and timestamps
// yield equal ids, which keeps simulated runs reproducible.
func NewGenerator(seed int64) *Generator {
	return &Generator{mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// At returns a ULID stamped with t.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.mono)
	if err != nil {
		// Only fails on clock rollback within the monotonic window or entropy overflow.
		panic(err)
	}
	return id.String()
}

var std = func() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGenerator(seed)
}()

// New returns a time-sortable identifier for now.
func New() string {
	return std.At(time.Now())
}
