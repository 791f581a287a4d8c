package units

import (
	"errors"
	"testing"

	"github.com/predictbase/marketd/internal/domain"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		base     string
		decimals int32
		want     string
	}{
		{"0", 18, "0"},
		{"1", 18, "0.000000000000000001"},
		{"1500000000000000000", 18, "1.5"},
		{"100000000000000000000", 18, "100"},
		{"1234567", 6, "1.234567"},
		{"42", 0, "42"},
	}
	for _, tt := range tests {
		a, err := domain.ParseAmount(tt.base)
		if err != nil {
			t.Fatal(err)
		}
		if got := Format(a, tt.decimals); got != tt.want {
			t.Errorf("Format(%s, %d) = %s, want %s", tt.base, tt.decimals, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"1.5", 18, "1500000000000000000", false},
		{"0.000000000000000001", 18, "1", false},
		{"2", 6, "2000000", false},
		{"0", 18, "0", false},
		{"0.0000000000000000001", 18, "", true},
		{"-1", 18, "", true},
		{"abc", 18, "", true},
		{"", 18, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, tt.decimals)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Fatalf("Parse(%q) err = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
