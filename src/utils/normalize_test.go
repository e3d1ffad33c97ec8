package utils_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/src/utils"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want float64
	}{
		{"plain float", 42.5, 42.5},
		{"int", 7, 7},
		{"json number", json.Number("1234.5"), 1234.5},
		{"millions suffix", "1.5M", 1_500_000},
		{"exact decimal multiply", "1.1M", 1_100_000},
		{"thousands suffix", "2K", 2_000},
		{"billions suffix lowercase", "0.25b", 250_000_000},
		{"multiplier suffix", "3.5x", 3.5},
		{"percent suffix", "12%", 12},
		{"currency and thousands", "$1,234,567", 1_234_567},
		{"us separators", "1,234.5", 1234.5},
		{"localized separators", "1.234,5", 1234.5},
		{"lone comma thousands", "51,000", 51_000},
		{"lone comma decimal", "1,5", 1.5},
		{"lone comma before three digits", "1,000", 1000},
		{"lone dot before three digits is decimal", "1.000", 1},
		{"lone dot decimal with grouping digits", "51.000", 51},
		{"repeated dots are thousands", "1.234.567", 1_234_567},
		{"negative", "-12.5%", -12.5},
		{"whitespace", "  8  ", 8},
		{"empty", "", 0},
		{"garbage", "n/a", 0},
		{"sign only", "-", 0},
		{"nil", nil, 0},
		{"unsupported type", []int{1}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, utils.NormalizeNumber(tc.raw))
		})
	}
}

func TestParseNumberReportsAbsence(t *testing.T) {
	value, ok := utils.ParseNumber("0")
	assert.True(t, ok)
	assert.Equal(t, 0.0, value)

	_, ok = utils.ParseNumber("abc")
	assert.False(t, ok)

	_, ok = utils.ParseNumber(nil)
	assert.False(t, ok)

	var missing *string
	_, ok = utils.ParseNumber(missing)
	assert.False(t, ok)
}

func TestNormalizeDate(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("accepted inputs", func(t *testing.T) {
		inputs := []any{
			want.UnixMilli(),
			float64(want.UnixMilli()),
			json.Number("1709251200000"),
			"1709251200000",
			"2024-03-01",
			"2024-03-01T00:00:00Z",
			"2024-03-01T00:00:00",
			"2024-03-01 00:00:00",
			"2024-03-01T01:00:00+01:00",
			want,
		}
		for _, input := range inputs {
			got, err := utils.NormalizeDate(input)
			require.NoError(t, err, "input %v", input)
			assert.True(t, want.Equal(got), "input %v gave %v", input, got)
			assert.Equal(t, time.UTC, got.Location())
		}
	})

	t.Run("rejected inputs", func(t *testing.T) {
		for _, input := range []any{"bad", "", nil, 0, -5, "2024-13-45", time.Time{}, true} {
			_, err := utils.NormalizeDate(input)
			assert.ErrorIs(t, err, utils.ErrInvalidDate, "input %v", input)
		}
	})
}
