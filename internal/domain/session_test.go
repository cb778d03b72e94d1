package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSessionMinutes(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want int64
	}{
		{"zero", 0, 0},
		{"negative", -time.Minute, 0},
		{"one second", time.Second, 1},
		{"exact minute", time.Minute, 1},
		{"just over", time.Minute + time.Millisecond, 2},
		{"fourteen and a half", 14*time.Minute + 30*time.Second, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionMinutes(tt.d))
		})
	}
}

func TestPlanDrawDown(t *testing.T) {
	tests := []struct {
		name                   string
		minutes, limit, used   int64
		credit                 int64
		monthly, fromCredit, o int64
	}{
		{"monthly then credit", 15, 10, 8, 20, 2, 13, 0},
		{"all monthly", 3, 10, 0, 20, 3, 0, 0},
		{"credit clamps, overage on monthly", 15, 10, 8, 5, 2 + 8, 5, 8},
		{"allowance already exceeded", 4, 10, 12, 3, 1, 3, 1},
		{"unlimited records usage", 42, Unlimited, 1000, 7, 42, 0, 0},
		{"nothing to deduct", 0, 10, 0, 5, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanDrawDown(tt.minutes, tt.limit, tt.used, tt.credit)

			assert.Equal(t, tt.monthly, got.Monthly)
			assert.Equal(t, tt.fromCredit, got.Credit)
			assert.Equal(t, tt.o, got.Overage)
		})
	}
}

func TestPlanDrawDown_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minutes := rapid.Int64Range(0, 1000).Draw(t, "minutes")
		limit := rapid.Int64Range(0, 500).Draw(t, "limit")
		used := rapid.Int64Range(0, 600).Draw(t, "used")
		credit := rapid.Int64Range(0, 500).Draw(t, "credit")

		d := PlanDrawDown(minutes, limit, used, credit)

		if d.Monthly+d.Credit != minutes {
			t.Fatalf("minutes lost: %+v for %d", d, minutes)
		}
		if d.Credit < 0 || d.Credit > credit {
			t.Fatalf("credit draw %d outside [0,%d]", d.Credit, credit)
		}
		if d.Monthly < 0 || d.Overage < 0 {
			t.Fatalf("negative draw: %+v", d)
		}
		// Credit is only touched once the allowance is used up.
		if d.Credit > 0 && used+d.Monthly-d.Overage < limit {
			t.Fatalf("credit drawn before allowance exhausted: %+v", d)
		}
		// Overage only exists when credit is used up too.
		if d.Overage > 0 && d.Credit != credit {
			t.Fatalf("overage with credit left: %+v", d)
		}
	})
}
