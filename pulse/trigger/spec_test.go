package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/avscheduler/errors"
)

func TestIntervalNext(t *testing.T) {
	for _, ref := range []time.Time{
		at("2024-03-01 12:00:00"),
		at("2024-03-01 12:00:00").Add(123 * time.Millisecond),
		time.Date(1999, 12, 31, 23, 59, 30, 0, time.UTC),
	} {
		got, err := Next(Every(60), ref)
		require.NoError(t, err)
		assert.True(t, got.Equal(ref.Add(60*time.Second)), "Next(Interval(60), %s) = %s", ref, got)
	}
}

func TestNextCron(t *testing.T) {
	got, err := Next(Cron("*/15 * * * *"), at("2024-03-01 12:01:00"))
	require.NoError(t, err)
	assert.True(t, at("2024-03-01 12:15:00").Equal(got))

	_, err = Next(Cron("61 * * * *"), at("2024-03-01 12:01:00"))
	assert.True(t, errors.Is(err, errors.ErrInvalidSchedule))
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name         string
		scheduleType string
		schedule     string
		interval     int
		want         Spec
		wantErr      bool
	}{
		{name: "default is cron", schedule: "0 * * * *", want: Cron("0 * * * *")},
		{name: "explicit cron", scheduleType: "cron", schedule: " */5 * * * * ", want: Cron("*/5 * * * *")},
		{name: "interval", scheduleType: "interval", interval: 5, want: Every(5)},
		{name: "interval ignores schedule", scheduleType: "Interval", schedule: "junk", interval: 30, want: Every(30)},
		{name: "cron without expression", scheduleType: "cron", wantErr: true},
		{name: "interval without seconds", scheduleType: "interval", wantErr: true},
		{name: "negative interval", scheduleType: "interval", interval: -5, wantErr: true},
		{name: "unknown type", scheduleType: "date", schedule: "2024-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpec(tt.scheduleType, tt.schedule, tt.interval)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidSchedule))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile(t *testing.T) {
	s, err := Compile(Every(10))
	require.NoError(t, err)
	assert.Equal(t, IntervalSchedule{Every: 10 * time.Second}, s)

	_, err = Compile(Spec{Kind: KindInterval})
	assert.True(t, errors.Is(err, errors.ErrInvalidSchedule))

	_, err = Compile(Spec{Kind: Kind(9)})
	assert.True(t, errors.Is(err, errors.ErrInvalidSchedule))

	c, err := Compile(Cron("0 0 * * *"))
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * *", c.(*CronSchedule).String())
}

func TestSpecString(t *testing.T) {
	assert.Equal(t, "every 1m0s", Every(60).String())
	assert.Equal(t, "0 * * * *", Cron("0 * * * *").String())
}
