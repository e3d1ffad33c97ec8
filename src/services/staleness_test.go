package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	old := now.Add(-6 * time.Minute)
	exact := now.Add(-5 * time.Minute)

	cases := []struct {
		name      string
		lastKnown *time.Time
		rows      int
		want      bool
	}{
		{"no rows stored", &recent, 0, true},
		{"never synced", nil, 10, true},
		{"synced within window", &recent, 10, false},
		{"synced exactly one window ago", &exact, 10, false},
		{"window elapsed", &old, 10, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NeedsRefresh(tc.lastKnown, tc.rows, 5*time.Minute, now))
		})
	}
}
