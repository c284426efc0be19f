package timezone

import (
	"testing"
	"time"
)

func TestDayBounds(t *testing.T) {
	tests := []struct {
		name      string
		in        time.Time
		wantStart string
		wantEnd   string
	}{
		{
			name:      "midday utc",
			in:        time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC),
			wantStart: "2024-03-05T00:00:00Z",
			wantEnd:   "2024-03-06T00:00:00Z",
		},
		{
			name:      "exact midnight belongs to the new day",
			in:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			wantStart: "2024-03-05T00:00:00Z",
			wantEnd:   "2024-03-06T00:00:00Z",
		},
		{
			name:      "local evening is next utc day",
			in:        time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)),
			wantStart: "2025-01-01T00:00:00Z",
			wantEnd:   "2025-01-02T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := DayBounds(tt.in)
			if got := start.Format(time.RFC3339); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := end.Format(time.RFC3339); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
			if DayKey(tt.in) != tt.wantStart[:10] {
				t.Errorf("DayKey = %s, want %s", DayKey(tt.in), tt.wantStart[:10])
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDay returned error: %v", err)
	}
	if !day.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDay = %v", day)
	}

	if _, err := ParseDay("29.02.2024"); err == nil {
		t.Error("expected error for malformed day")
	}
}

func TestSetClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	restore := SetClock(func() time.Time { return fixed })
	defer restore()

	if got := Now(); !got.Equal(fixed) || got.Location() != time.UTC {
		t.Errorf("Now = %v, want %v in UTC", got, fixed)
	}
}
