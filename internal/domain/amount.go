package domain

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ParseAmount parses a base-unit token quantity encoded as a decimal string.
func ParseAmount(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %q exceeds 64 bits", ErrOverflow, raw)
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return v, nil
}

// FormatAmount renders an amount for the wire.
func FormatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// AddAmount returns a+b or ErrOverflow on wraparound.
func AddAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// SubAmount returns a-b or ErrOverflow when b > a.
func SubAmount(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return diff, nil
}
