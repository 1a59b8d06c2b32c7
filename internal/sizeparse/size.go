// Package sizeparse parses human-readable byte sizes such as "64K", "1M",
// "2G" into a byte count. Both suffix forms (K/M/G/T and Ki/Mi/Gi/Ti) are
// 1024-based, so "1K" and "1Ki" are both 1024. Parsing is case-insensitive
// and accepts an optional trailing "B".
package sizeparse

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
	tb = 1 << 40
)

var binarySuffixes = map[string]int64{
	"":   1,
	"k":  kb,
	"ki": kb,
	"m":  mb,
	"mi": mb,
	"g":  gb,
	"gi": gb,
	"t":  tb,
	"ti": tb,
}

// Parse converts a human-readable byte size into a byte count. Suffixes are
// case-insensitive and a trailing "B" is optional: "1M", "1MB", "1Mi", "1MiB"
// and "1mb" all parse to 1 << 20. Whitespace between the number and suffix is
// allowed. An empty suffix means bytes.
func Parse(text string) (int64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("sizeparse: empty size")
	}

	i := 0
	for i < len(trimmed) && (isDigit(trimmed[i]) || trimmed[i] == '.') {
		i++
	}
	numPart := strings.TrimSpace(trimmed[:i])
	suffixPart := strings.ToLower(strings.TrimSpace(trimmed[i:]))
	suffixPart = strings.TrimSuffix(suffixPart, "b")

	if numPart == "" {
		return 0, fmt.Errorf("sizeparse: %q has no leading number", text)
	}

	mult, ok := binarySuffixes[suffixPart]
	if !ok {
		return 0, fmt.Errorf("sizeparse: %q has unrecognized suffix %q", text, suffixPart)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("sizeparse: %q is not a valid number: %w", text, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("sizeparse: %q is negative", text)
	}

	return int64(value * float64(mult)), nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
