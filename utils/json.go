package utils

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

var ErrNotFound = errors.New("key not found")

func ValidJSON(payload []byte) bool {
	return gjson.ValidBytes(payload)
}

// LookupUint returns the unsigned integer stored at a dotted path.
// Floats, negatives and strings are rejected.
func LookupUint(payload []byte, path string) (uint64, error) {
	res := gjson.GetBytes(payload, path)
	if !res.Exists() {
		return 0, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if res.Type != gjson.Number {
		return 0, fmt.Errorf("%s: not a number: %s", path, res.Raw)
	}
	v, err := strconv.ParseUint(res.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: not an unsigned integer: %w", path, err)
	}
	return v, nil
}

// LookupFirstUint tries each path in order and returns the first that exists.
func LookupFirstUint(payload []byte, paths ...string) (uint64, string, error) {
	for _, p := range paths {
		if !gjson.GetBytes(payload, p).Exists() {
			continue
		}
		v, err := LookupUint(payload, p)
		return v, p, err
	}
	return 0, "", ErrNotFound
}

// LookupString returns the string at a dotted path, or "" when absent.
func LookupString(payload []byte, path string) string {
	return gjson.GetBytes(payload, path).String()
}
