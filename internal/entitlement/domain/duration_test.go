package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]int{
		"30 хоног":                30,
		"3 сар":                   90,
		"1 жил":                   365,
		"90":                      90,
		"14 өдөр":                 14,
		"2 Months":                60,
		"1 year":                  365,
		"45days":                  45,
		"  7 day  ":               7,
		"":                        30,
		"forever":                 30,
		"3 weeks":                 30,
		"0 сар":                   30,
		"сар 3":                   30,
		"3 сар 10":                30,
		"100 жил":                 36500,
		"101 жил":                 30,
		"9223372036854775807 жил": 30,
		"99999999999999999999":    30,
	}
	for label, want := range cases {
		t.Run(label, func(t *testing.T) {
			assert.Equal(t, want, ParseDuration(label, DefaultDurationDays))
		})
	}
}

func TestResolveDays(t *testing.T) {
	days := 120
	zero := 0
	label := "3 сар"
	bad := "soon"

	assert.Equal(t, 120, ResolveDays(&days, &label, 30))
	assert.Equal(t, 90, ResolveDays(&zero, &label, 30))
	assert.Equal(t, 90, ResolveDays(nil, &label, 30))
	assert.Equal(t, 45, ResolveDays(nil, &bad, 45))
	assert.Equal(t, 30, ResolveDays(nil, nil, 30))

	huge := MaxDurationDays + 1
	assert.Equal(t, 90, ResolveDays(&huge, &label, 30))
	assert.Equal(t, 30, ResolveDays(&huge, nil, 30))
}
