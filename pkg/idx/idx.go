package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in canonical string form. IDs minted at increasing times sort
// lexically in the same order.
type ID string

const Zero ID = ""

var ErrInvalid = errors.New("idx: invalid ulid")

// Generator mints IDs from its own monotonic entropy. Consecutive IDs for the
// same millisecond are strictly increasing, but only while nothing mints a
// different millisecond in between: the entropy is redrawn whenever the
// timestamp changes. Callers that rely on mint order for equal timestamps
// (the audit trail) own a Generator instead of sharing the package one.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// At mints an ID whose timestamp component is t.
func (g *Generator) At(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), g.entropy).String())
}

var shared = NewGenerator()

// New mints an ID for the current time from the shared generator.
func New() ID {
	return shared.At(time.Now())
}

// NewAt mints an ID for t from the shared generator.
func NewAt(t time.Time) ID {
	return shared.At(t)
}

// Parse validates s as a ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time returns the embedded timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
