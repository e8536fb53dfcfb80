package activpal

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// fixtureHeader builds a 1024-byte header with every decoded field set
// to a known value.
func fixtureHeader() []byte {
	h := make([]byte, 1024)

	h[39] = 1 // firmware high byte
	h[17] = 10
	h[38] = 129 // bit depth 10, resolution code 1 (4g)
	h[35] = 20  // hz

	h[280] = 0 // 3 axes

	// start 2017-03-15 09:30:00
	h[261], h[260], h[259] = 17, 3, 15
	h[256], h[257], h[258] = 9, 30, 0
	// stop 2017-03-18 12:00:05
	h[267], h[266], h[265] = 17, 3, 18
	h[262], h[263], h[264] = 12, 0, 5

	h[268] = 1  // Immediately
	h[275] = 64 // USB

	// file code "AP" with an embedded null that must be dropped
	h[512], h[513], h[514] = 'A', 0, 'P'

	// device id bytes
	h[10] = 14 // year code, last digit 4
	h[14] = 3
	h[40] = 2
	h[11] = 1
	h[12] = 2
	h[13] = 7

	return h
}

func TestExtractMetadata(t *testing.T) {
	meta, err := ExtractMetadata(fixtureHeader())
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}

	if meta.Firmware != 1*255+10 {
		t.Errorf("firmware = %d, want %d", meta.Firmware, 265)
	}
	if meta.BitDepth != 10 {
		t.Errorf("bit depth = %d, want 10", meta.BitDepth)
	}
	if meta.Resolution != 4 {
		t.Errorf("resolution = %d, want 4", meta.Resolution)
	}
	if meta.Hz != 20 {
		t.Errorf("hz = %d, want 20", meta.Hz)
	}
	if meta.Axes != 3 {
		t.Errorf("axes = %d, want 3", meta.Axes)
	}

	wantStart := time.Date(2017, 3, 15, 9, 30, 0, 0, time.UTC)
	wantStop := time.Date(2017, 3, 18, 12, 0, 5, 0, time.UTC)
	if !meta.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", meta.StartTime, wantStart)
	}
	if !meta.StopTime.Equal(wantStop) {
		t.Errorf("stop = %v, want %v", meta.StopTime, wantStop)
	}
	if meta.Duration != wantStop.Sub(wantStart) {
		t.Errorf("duration = %v, want %v", meta.Duration, wantStop.Sub(wantStart))
	}

	if meta.StartCond != "Immediately" {
		t.Errorf("start condition = %q, want Immediately", meta.StartCond)
	}
	if meta.StopCond != "USB" {
		t.Errorf("stop condition = %q, want USB", meta.StopCond)
	}
	if meta.FileCode != "AP" {
		t.Errorf("file code = %q, want AP", meta.FileCode)
	}

	// 4*100000 + 3*10000 + 2*4096 + 1*256 + 2*16 + 7
	if want := 438487; meta.DeviceID != want {
		t.Errorf("device id = %d, want %d", meta.DeviceID, want)
	}
}

func TestExtractMetadataPure(t *testing.T) {
	h := fixtureHeader()
	a, err := ExtractMetadata(h)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	b, err := ExtractMetadata(h)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated extraction differs: %+v vs %+v", a, b)
	}
}

func TestExtractMetadataShortHeader(t *testing.T) {
	_, err := ExtractMetadata(make([]byte, 519))
	if !errors.Is(err, ErrHeaderTooShort) {
		t.Fatalf("err = %v, want ErrHeaderTooShort", err)
	}
}

func TestExtractMetadataInvalidDate(t *testing.T) {
	cases := []struct {
		name   string
		offset int
		value  byte
	}{
		{"month zero", 260, 0},
		{"month thirteen", 260, 13},
		{"day out of month", 259, 32},
		{"hour", 256, 24},
		{"minute", 257, 60},
		{"second", 264, 61},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := fixtureHeader()
			h[c.offset] = c.value
			if _, err := ExtractMetadata(h); !errors.Is(err, ErrInvalidDate) {
				t.Errorf("err = %v, want ErrInvalidDate", err)
			}
		})
	}
}

func TestExtractMetadataLenientLookups(t *testing.T) {
	h := fixtureHeader()
	h[280] = 9   // unmapped axes code
	h[268] = 7   // unmapped start condition
	h[275] = 200 // unmapped stop condition
	h[38] = 3    // unmapped resolution code, bit depth 8

	meta, err := ExtractMetadata(h)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if meta.Axes != 0 {
		t.Errorf("axes = %d, want 0 for unmapped code", meta.Axes)
	}
	if meta.StartCond != "" || meta.StopCond != "" {
		t.Errorf("conditions = %q/%q, want empty for unmapped codes", meta.StartCond, meta.StopCond)
	}
	if meta.BitDepth != 8 || meta.Resolution != 0 {
		t.Errorf("depth/resolution = %d/%d, want 8/0", meta.BitDepth, meta.Resolution)
	}
}

func TestExtractMetadataNegativeDuration(t *testing.T) {
	h := fixtureHeader()
	h[265] = 14 // stop day before start day
	meta, err := ExtractMetadata(h)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if meta.Duration >= 0 {
		t.Errorf("duration = %v, want negative passthrough", meta.Duration)
	}
}
