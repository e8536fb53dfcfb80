package activpal

import (
	"errors"
	"testing"
)

func TestDecodeBodyAllNormal(t *testing.T) {
	body := []byte{1, 2, 3, 10, 20, 30, 100, 150, 200}
	samples, err := DecodeBody(body, 218, false)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	want := []Sample{{1, 2, 3}, {10, 20, 30}, {100, 150, 200}}
	if len(samples) != len(want) {
		t.Fatalf("rows = %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeBodyCompressed(t *testing.T) {
	body := []byte{5, 6, 7, 0, 0, 2}

	samples, err := DecodeBody(body, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	// firmware >= 218: (0,0,2) means 2 repeats, so 3 rows in total
	if len(samples) != 3 {
		t.Fatalf("rows = %d, want 3", len(samples))
	}
	for i, s := range samples {
		if s != (Sample{5, 6, 7}) {
			t.Errorf("row %d = %v, want {5 6 7}", i, s)
		}
	}

	samples, err = DecodeBody(body, 217, true)
	if err != nil {
		t.Fatalf("DecodeBody old firmware: %v", err)
	}
	// firmware < 218: run lengths are off by one, (0,0,2) means 3 repeats
	if len(samples) != 4 {
		t.Fatalf("old-firmware rows = %d, want 4", len(samples))
	}
}

func TestDecodeBodyCompressedZeroRepeats(t *testing.T) {
	samples, err := DecodeBody([]byte{5, 6, 7, 0, 0, 0}, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("rows = %d, want 1 for a zero-count repeat group", len(samples))
	}
}

func TestDecodeBodyMaxExpansion(t *testing.T) {
	samples, err := DecodeBody([]byte{5, 6, 7, 0, 0, 255}, 217, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(samples) != 257 {
		t.Fatalf("rows = %d, want 257 (1 normal + 256 repeats)", len(samples))
	}
}

// Old firmware expands a (0,0,255) group to 256 rows, one more than the
// group count alone suggests, so a long run of full-length repeat groups
// must not outgrow the output arena.
func TestDecodeBodyMaxExpansionSustained(t *testing.T) {
	const groups = 300
	body := make([]byte, 0, 3+groups*3)
	body = append(body, 5, 6, 7)
	for i := 0; i < groups; i++ {
		body = append(body, 0, 0, 255)
	}

	samples, err := DecodeBody(body, 217, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if want := 1 + groups*256; len(samples) != want {
		t.Fatalf("rows = %d, want %d", len(samples), want)
	}
	if samples[len(samples)-1] != (Sample{5, 6, 7}) {
		t.Errorf("last row = %v, want {5 6 7}", samples[len(samples)-1])
	}
}

func TestDecodeBodyInvalidSentinel(t *testing.T) {
	samples, err := DecodeBody([]byte{5, 6, 7, 255, 255, 255}, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("rows = %d, want 2", len(samples))
	}
	if samples[1] != samples[0] {
		t.Errorf("invalid sentinel row = %v, want duplicate of %v", samples[1], samples[0])
	}
}

func TestDecodeBodyDatxTail(t *testing.T) {
	body := []byte{
		1, 2, 3,
		10, 20, 30,
		't', 'a', 'i', 'l',
		9, 9, 9, 9, 9, // trailing junk must be ignored
	}
	samples, err := DecodeBody(body, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("rows = %d, want 2", len(samples))
	}
}

func TestDecodeBodyDatTail(t *testing.T) {
	body := []byte{
		1, 2, 3,
		0, 0, 4, 0, 0, 7, 9, 0, // 8-byte tail pattern
		50, 50, 50,
	}
	samples, err := DecodeBody(body, 218, false)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("rows = %d, want 1", len(samples))
	}
}

// In a .dat file the tail marker shares its (0,0,z>0) prefix with a
// compressed group; when the rest of the 8-byte pattern does not hold,
// the group must decode as run-length compression.
func TestDecodeBodyDatCompressedNotTail(t *testing.T) {
	body := []byte{
		1, 2, 3,
		0, 0, 2, 8, 8, 8, 8, 8, 8,
	}
	samples, err := DecodeBody(body, 218, false)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	// 1 normal + 2 repeats + 2 normal groups from the trailing bytes
	if len(samples) != 5 {
		t.Fatalf("rows = %d, want 5", len(samples))
	}
}

func TestDecodeBodyRepeatWithoutSample(t *testing.T) {
	if _, err := DecodeBody([]byte{255, 255, 255}, 218, true); !errors.Is(err, ErrRepeatWithoutSample) {
		t.Errorf("invalid sentinel first: err = %v, want ErrRepeatWithoutSample", err)
	}
	if _, err := DecodeBody([]byte{0, 0, 5}, 218, true); !errors.Is(err, ErrRepeatWithoutSample) {
		t.Errorf("compressed first: err = %v, want ErrRepeatWithoutSample", err)
	}
}

func TestDecodeBodyEmptyAndPartial(t *testing.T) {
	samples, err := DecodeBody(nil, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody(nil): %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("rows = %d, want 0", len(samples))
	}

	// trailing partial group is dropped
	samples, err = DecodeBody([]byte{1, 2, 3, 4, 5}, 218, true)
	if err != nil {
		t.Fatalf("DecodeBody partial: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("rows = %d, want 1", len(samples))
	}
}
