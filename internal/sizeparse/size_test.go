package sizeparse_test

import (
	"testing"

	"github.com/cuemby/s3block/internal/sizeparse"
)

const (
	tb = 1 << 40
	gb = 1 << 30
	mb = 1 << 20
	kb = 1 << 10
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"1TB", 1 * tb},
		{"1GB", 1 * gb},
		{"1MB", 1 * mb},
		{"1KB", 1 * kb},
		{"1", 1},
		{"500", 500},
		{"0", 0},
		// case insensitivity
		{"1.00TB", 1 * tb},
		{"1.00gB", 1 * gb},
		{"1.00Mb", 1 * mb},
		{"1.00kb", 1 * kb},
		// without B suffix
		{"1.00T", 1 * tb},
		{"1.00G", 1 * gb},
		{"1.00M", 1 * mb},
		{"1.00K", 1 * kb},
		// with whitespace
		{"64 K", 64 * kb},
		{"1 GB", 1 * gb},
	}

	for i, test := range tests {
		got, err := sizeparse.Parse(test.text)
		if err != nil {
			t.Errorf("%d. %q: got error %v", i, test.text, err)
			continue
		}
		if got != test.want {
			t.Errorf("%d. %q: got %d expected %d", i, test.text, got, test.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"1.0Q",
		"1.0QB",
		"z1.0KB",
		"",
		"K",
	}

	for i, test := range tests {
		if _, err := sizeparse.Parse(test); err == nil {
			t.Errorf("%d. %q: expected error, got none", i, test)
		}
	}
}
