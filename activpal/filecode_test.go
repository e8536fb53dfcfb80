package activpal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSetFileCodeRoundTrip(t *testing.T) {
	path := writeFixtureFile(t, "walk.datx", []byte{'t', 'a', 'i', 'l'})

	if err := SetFileCode(path, "TEST"); err != nil {
		t.Fatalf("SetFileCode: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	meta, err := ExtractMetadata(raw[:headerLenDatx])
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if meta.FileCode != "TEST" {
		t.Errorf("file code = %q, want TEST", meta.FileCode)
	}

	// only the 8 code bytes may change
	if raw[fileCodeOffset-1] != 0 || raw[fileCodeOffset+fileCodeLen] != 0 {
		t.Error("patch touched bytes outside the code field")
	}
}

func TestSetFileCodeTooLong(t *testing.T) {
	path := writeFixtureFile(t, "walk.datx", nil)
	if err := SetFileCode(path, "LONGCODE1"); !errors.Is(err, ErrCodeTooLong) {
		t.Fatalf("err = %v, want ErrCodeTooLong", err)
	}
}

func TestSetFileCodeMissingFile(t *testing.T) {
	err := SetFileCode(filepath.Join(t.TempDir(), "absent.datx"), "TEST")
	if err == nil || !IsNotFound(err) {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}

func TestSetFileCodeDirectory(t *testing.T) {
	if err := SetFileCode(t.TempDir(), "TEST"); err == nil {
		t.Fatal("expected error for directory target")
	}
}

func TestSetFileCodeNonASCII(t *testing.T) {
	path := writeFixtureFile(t, "walk.datx", nil)
	if err := SetFileCode(path, "caf\xc3\xa9"); err == nil {
		t.Fatal("expected error for non-ASCII code")
	}
}
