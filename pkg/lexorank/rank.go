// Package lexorank generates fractional sort keys for ordered workflow actions.
//
// Keys are strings over the alphabet 0-9a-z compared byte-wise. A key never ends
// with the zero digit, which guarantees that another key exists between any two
// distinct keys, so an item can be inserted anywhere without renumbering its siblings.
package lexorank

import (
	"errors"
	"fmt"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

var (
	// ErrInvalidKey indicates a key that is empty, uses characters outside the alphabet or ends with '0'.
	ErrInvalidKey = errors.New("invalid lexorank key")

	// ErrInvalidRange indicates a lower bound that is not strictly less than the upper bound.
	ErrInvalidRange = errors.New("lexorank lower bound must sort before upper bound")
)

// Validate checks that key is a well-formed rank.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	for i := range len(key) {
		if digit(key[i]) < 0 {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, key[i])
		}
	}

	if key[len(key)-1] == alphabet[0] {
		return fmt.Errorf("%w: %q ends with %q", ErrInvalidKey, key, alphabet[0])
	}

	return nil
}

// Between returns a key that sorts strictly after a and strictly before b.
// An empty a means no lower bound and an empty b means no upper bound.
func Between(a, b string) (string, error) {
	if a != "" {
		if err := Validate(a); err != nil {
			return "", err
		}
	}

	if b != "" {
		if err := Validate(b); err != nil {
			return "", err
		}
	}

	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("%w: %q >= %q", ErrInvalidRange, a, b)
	}

	return midpoint(a, b), nil
}

// Initial returns the key used for the first item of an empty list.
func Initial() string {
	return midpoint("", "")
}

// After returns a key that sorts after key.
func After(key string) (string, error) {
	return Between(key, "")
}

// Before returns a key that sorts before key.
func Before(key string) (string, error) {
	return Between("", key)
}

// Sequence returns n increasing keys, suitable for seeding a new list.
func Sequence(n int) []string {
	keys := make([]string, 0, n)
	prev := ""

	for range n {
		prev = midpoint(prev, "")
		keys = append(keys, prev)
	}

	return keys
}

// midpoint assumes a < b (b == "" meaning +inf) and both are valid or empty.
func midpoint(a, b string) string {
	if b != "" {
		n := 0

		for n < len(b) {
			ca := alphabet[0]
			if n < len(a) {
				ca = a[n]
			}

			if ca != b[n] {
				break
			}

			n++
		}

		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}

			return b[:n] + midpoint(rest, b[n:])
		}
	}

	da := 0
	if a != "" {
		da = digit(a[0])
	}

	db := base
	if b != "" {
		db = digit(b[0])
	}

	if db-da > 1 {
		return string(alphabet[(da+db)/2])
	}

	if b != "" && len(b) > 1 {
		return b[:1]
	}

	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}

	return string(alphabet[da]) + midpoint(rest, "")
}

func digit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return -1
	}
}
