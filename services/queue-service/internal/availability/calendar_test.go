package availability

import (
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	loc, ok := LoadLocation("America/Sao_Paulo")
	if !ok {
		t.Fatalf("expected zone to load")
	}
	day, err := ParseDay("2026-03-02", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if day.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", day.Weekday())
	}

	for _, bad := range []string{"", "2026-02-30", "02/03/2026", "2026-13-01", "tomorrow"} {
		if _, err := ParseDay(bad, loc); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	loc, ok := LoadLocation("Mars/Olympus_Mons")
	if ok || loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v ok=%v", loc, ok)
	}
}

func TestDayBounds(t *testing.T) {
	loc, _ := LoadLocation("America/Sao_Paulo")
	day, _ := ParseDay("2026-03-02", loc)
	start, end := DayBounds(day)
	if !start.Equal(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected 24h day, got %s", end.Sub(start))
	}
}

func TestDayBoundsAcrossDST(t *testing.T) {
	loc, ok := LoadLocation("America/New_York")
	if !ok {
		t.Fatalf("expected zone to load")
	}
	day, _ := ParseDay("2026-03-08", loc)
	start, end := DayBounds(day)
	if end.Sub(start) != 23*time.Hour {
		t.Fatalf("expected 23h spring forward day, got %s", end.Sub(start))
	}
	if start.Location() != time.UTC || end.Location() != time.UTC {
		t.Fatalf("expected UTC bounds")
	}
}

func TestClock(t *testing.T) {
	m, err := ParseClock("09:35")
	if err != nil || m != 575 {
		t.Fatalf("expected 575, got %d err=%v", m, err)
	}
	if FormatClock(m) != "09:35" {
		t.Fatalf("unexpected format %q", FormatClock(m))
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected invalid clock error")
	}
}

func TestMinuteOfDayAndAt(t *testing.T) {
	loc, _ := LoadLocation("America/Sao_Paulo")
	day, _ := ParseDay("2026-03-02", loc)
	instant := At(day, 14*60+10)
	if got := MinuteOfDay(instant.UTC(), loc); got != 14*60+10 {
		t.Fatalf("expected 850, got %d", got)
	}
	if !SameDay(instant, day) {
		t.Fatalf("expected same day")
	}
}
