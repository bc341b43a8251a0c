package clock

import "testing"

func TestBandOf(t *testing.T) {
	cases := []struct {
		hour int
		want Band
	}{
		{0, BandNight},
		{4, BandNight},
		{5, BandDawn},
		{7, BandDawn},
		{8, BandMorning},
		{11, BandMorning},
		{12, BandAfternoon},
		{16, BandAfternoon},
		{17, BandEvening},
		{21, BandEvening},
		{22, BandNight},
		{23, BandNight},
	}
	for _, c := range cases {
		if got := BandOf(uint64(c.hour)); got != c.want {
			t.Errorf("hour %d: band %s, want %s", c.hour, got, c.want)
		}
	}
}

func TestDayAndHour(t *testing.T) {
	if DayOf(0) != 0 || DayOf(23) != 0 || DayOf(24) != 1 || DayOf(49) != 2 {
		t.Error("day boundaries are off")
	}
	if HourOf(0) != 0 || HourOf(23) != 23 || HourOf(24) != 0 || HourOf(30) != 6 {
		t.Error("hour wrapping is off")
	}

	// Bands repeat across days.
	if BandOf(6) != BandOf(6+SegmentsPerDay) {
		t.Error("band does not repeat day over day")
	}
}

func TestSimTime(t *testing.T) {
	if got := SimTime(0); got != "Day 1, 00:00 (night)" {
		t.Errorf("SimTime(0) = %q", got)
	}
	if got := SimTime(2*SegmentsPerDay + 14); got != "Day 3, 14:00 (afternoon)" {
		t.Errorf("SimTime(62) = %q", got)
	}
}

func TestRunnerStep(t *testing.T) {
	r := NewRunner()
	r.Segment = SegmentsPerDay - 1

	var segments, days int
	r.OnSegment = func(uint64) { segments++ }
	r.OnDay = func(uint64) { days++ }

	r.step()
	r.step()

	if segments != 2 {
		t.Errorf("segment callback fired %d times, want 2", segments)
	}
	if days != 1 {
		t.Errorf("day callback fired %d times, want 1 (at the day boundary)", days)
	}
	if r.Segment != SegmentsPerDay+1 {
		t.Errorf("segment counter %d, want %d", r.Segment, SegmentsPerDay+1)
	}
}
