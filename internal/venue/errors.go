package venue

import (
	"errors"
	"strings"
)

var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
)

// Class buckets venue errors by how the trading loop should react.
type Class int

const (
	// ClassTransient errors retry on the next tick after a short
	// backoff.
	ClassTransient Class = iota
	// ClassCritical errors stop the loop after persisting state.
	ClassCritical
	// ClassUnknown errors continue with a longer backoff.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassCritical:
		return "critical"
	default:
		return "unknown"
	}
}

var transientVocabulary = []string{
	"timeout",
	"timed out",
	"connection",
	"network",
	"rate limit",
	"temporar",
	"unavailable",
}

var criticalVocabulary = []string{
	"invalid",
	"unauthorized",
	"forbidden",
	"insufficient",
	"locked",
}

// Classify buckets an error by its message vocabulary. Critical terms
// win over transient ones so "invalid symbol: connection refused"
// style wrappers stop the loop.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())

	for _, term := range criticalVocabulary {
		if strings.Contains(msg, term) {
			return ClassCritical
		}
	}
	for _, term := range transientVocabulary {
		if strings.Contains(msg, term) {
			return ClassTransient
		}
	}
	return ClassUnknown
}
