package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUSD(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "whole dollars", in: "5", want: 500},
		{name: "two decimals", in: "12.34", want: 1234},
		{name: "one decimal", in: "0.5", want: 50},
		{name: "zero", in: "0", want: 0},
		{name: "sub-cent rounds half-even", in: "0.005", want: 0},
		{name: "sub-cent rounds up", in: "0.015", want: 2},
		{name: "negative rejected", in: "-1.00", wantErr: true},
		{name: "garbage rejected", in: "five dollars", wantErr: true},
		{name: "empty rejected", in: "", wantErr: true},
		{name: "infinity rejected", in: "inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUSD(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "12.34", FormatCents(1234))
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "100.00", FormatCents(10000))
}

func TestRoundTrip(t *testing.T) {
	cents, err := ParseUSD("99.99")
	assert.NoError(t, err)
	assert.Equal(t, "99.99", FormatCents(cents))
}
