package activpal

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFixtureFile assembles a decodable file from the fixture header and
// the given body bytes. The header is truncated to 1023 bytes for .dat.
func writeFixtureFile(t *testing.T, name string, body []byte) string {
	t.Helper()

	h := fixtureHeader()
	if filepath.Ext(name) == ".dat" {
		h = h[:headerLenDat]
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, append(h, body...), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadDatx(t *testing.T) {
	body := []byte{
		190, 127, 127, // 1g on x
		127, 190, 127, // 1g on y
		127, 127, 190, // 1g on z
		't', 'a', 'i', 'l',
	}
	path := writeFixtureFile(t, "walk.datx", body)

	rec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Len() != 3 {
		t.Fatalf("rows = %d, want 3", rec.Len())
	}
	if rec.Meta().DeviceID != 438487 {
		t.Errorf("device id = %d, want 438487", rec.Meta().DeviceID)
	}

	x, y, z := rec.X(), rec.Y(), rec.Z()
	if x[0] != 1 || y[0] != 0 || z[0] != 0 {
		t.Errorf("row 0 = (%v,%v,%v), want (1,0,0)", x[0], y[0], z[0])
	}
	if x[1] != 0 || y[1] != 1 || z[1] != 0 {
		t.Errorf("row 1 = (%v,%v,%v), want (0,1,0)", x[1], y[1], z[1])
	}
}

func TestLoadDat(t *testing.T) {
	body := []byte{
		1, 2, 3,
		0, 0, 4, 0, 0, 7, 9, 0, // .dat tail pattern
	}
	path := writeFixtureFile(t, "walk.dat", body)

	rec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Len() != 1 {
		t.Fatalf("rows = %d, want 1", rec.Len())
	}
}

func TestLoadTimestamps(t *testing.T) {
	body := []byte{
		190, 127, 127,
		127, 190, 127,
		127, 127, 190,
		't', 'a', 'i', 'l',
	}
	rec, err := Load(writeFixtureFile(t, "walk.datx", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// hz = 20 in the fixture header, so rows are 50ms apart
	if rec.Interval() != 50*time.Millisecond {
		t.Fatalf("interval = %v, want 50ms", rec.Interval())
	}
	start := rec.Meta().StartTime
	for i, ts := range rec.Timestamps() {
		want := start.Add(time.Duration(i) * 50 * time.Millisecond)
		if !ts.Equal(want) {
			t.Errorf("timestamp %d = %v, want %v", i, ts, want)
		}
	}
}

func TestRecordingRSS(t *testing.T) {
	body := []byte{
		190, 190, 127, // (1,1,0) -> rss sqrt(2)
		't', 'a', 'i', 'l',
	}
	rec, err := Load(writeFixtureFile(t, "walk.datx", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rss := rec.RSS()
	if got, want := rss[0], math.Sqrt(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("rss[0] = %v, want %v", got, want)
	}

	// computed once: the cached slice must survive between calls
	cached := rec.rss
	if cached == nil {
		t.Fatal("rss cache not populated after first call")
	}
	rec.RSS()
	if &rec.rss[0] != &cached[0] {
		t.Error("second RSS call recomputed the cached channel")
	}
}

func TestRecordingAccessorsCopy(t *testing.T) {
	body := []byte{190, 127, 127, 't', 'a', 'i', 'l'}
	rec, err := Load(writeFixtureFile(t, "walk.datx", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec.X()[0] = -99
	rec.RSS()[0] = -99
	if rec.X()[0] == -99 {
		t.Error("mutating the X copy reached the internal series")
	}
	if rec.RSS()[0] == -99 {
		t.Error("mutating the RSS copy reached the cached channel")
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.foo")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.datx")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrHeaderTooShort) {
		t.Fatalf("err = %v, want ErrHeaderTooShort", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.datx"))
	if err == nil || !IsNotFound(err) {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}
