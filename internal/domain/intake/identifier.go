package intake

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDStrategy selects how record identifiers are built.
type IDStrategy string

const (
	// IDStrategyTimestamp builds patient-<unix-millis>-<9 base36 chars>.
	IDStrategyTimestamp IDStrategy = "timestamp"
	// IDStrategyUUID builds patient-<uuid v4>.
	IDStrategyUUID IDStrategy = "uuid"
)

const (
	recordIDPrefix = "patient-"
	suffixLength   = 9
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// MRNPrefix tags every synthetic medical record number.
	MRNPrefix = "MRN-"
	mrnMin    = 100000
	mrnMax    = 999999
)

// ParseIDStrategy validates a configured strategy name.
func ParseIDStrategy(s string) (IDStrategy, error) {
	switch IDStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDStrategyTimestamp:
		return IDStrategyTimestamp, nil
	case IDStrategyUUID:
		return IDStrategyUUID, nil
	}
	return "", fmt.Errorf("unknown id strategy %q (want %q or %q)", s, IDStrategyTimestamp, IDStrategyUUID)
}

// IDGenerator produces synthetic identifiers. Values are not checked for
// collisions against earlier calls; they are placeholders, not identities.
type IDGenerator struct {
	strategy IDStrategy
	intn     func(n int) int
	newUUID  func() uuid.UUID
}

func NewIDGenerator(strategy IDStrategy) *IDGenerator {
	if strategy == "" {
		strategy = IDStrategyTimestamp
	}
	return &IDGenerator{
		strategy: strategy,
		intn:     rand.IntN,
		newUUID:  uuid.New,
	}
}

// RecordID returns a fresh record identifier for a record generated at t.
func (g *IDGenerator) RecordID(t time.Time) string {
	if g.strategy == IDStrategyUUID {
		return recordIDPrefix + g.newUUID().String()
	}
	var b strings.Builder
	b.Grow(suffixLength)
	for i := 0; i < suffixLength; i++ {
		b.WriteByte(suffixAlphabet[g.intn(len(suffixAlphabet))])
	}
	return fmt.Sprintf("%s%d-%s", recordIDPrefix, t.UnixMilli(), b.String())
}

// MRN returns MRN- followed by a uniform integer in [100000, 999999].
func (g *IDGenerator) MRN() string {
	return fmt.Sprintf("%s%d", MRNPrefix, mrnMin+g.intn(mrnMax-mrnMin+1))
}
