package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-10-10")
	if !ok || !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v (ok=%v)", got, ok)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(ts.Unix(), 10))
	if !ok || got.Unix() != ts.Unix() {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
	got, ok = ParseTime(strconv.FormatInt(ts.UnixMilli(), 10))
	if !ok || !got.Equal(ts) {
		t.Fatalf("unexpected unix ms %v", got)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
	if got := ParseTimeDefault("yesterday", def); !got.Equal(def) {
		t.Fatalf("expected default for garbage")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" BTCUSDT, ,ETHUSDT,")
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected %v", got)
	}
	if SplitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
	if ParseIntDefault("x", 7) != 7 || ParseIntDefault("3", 7) != 3 {
		t.Fatalf("ParseIntDefault")
	}
}
