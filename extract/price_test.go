package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$1,599.99", 1599.99, true},
		{"1599", 1599, true},
		{"  $89.5 ", 89.5, true},
		{"Save $5 now $89.99", 89.99, true},
		{"$9.99", 0, false},
		{"$10.00", 0, false},
		{"call for price", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in, 10)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestScanPrice(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"rtx 4090 founders edition $1,599.99 in stock", 1599.99, true},
		{"model 4090, 24gb", 0, false},
		{"was $ 2,099 now $1,899", 2099, true},
		{"qty 2 $3.49", 0, false},
	}
	for _, tt := range tests {
		got, ok := ScanPrice(tt.in, 10)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
