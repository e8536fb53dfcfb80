package activpal

import (
	"fmt"
	"io/fs"
	"os"
)

const (
	fileCodeOffset = 512
	fileCodeLen    = 8
)

// SetFileCode overwrites the 8-byte file-code field in the header of an
// existing activPAL raw data file in place. The code is ASCII, at most 8
// characters, and is right-padded with null bytes on disk.
//
// The write is a single in-place patch with no backup: an I/O failure
// mid-write can leave the field partially overwritten. Callers must
// serialize concurrent writers to the same path.
func SetFileCode(path, code string) error {
	if len(code) > fileCodeLen {
		return fmt.Errorf("%w: %q is %d characters", ErrCodeTooLong, code, len(code))
	}
	for i := 0; i < len(code); i++ {
		if code[i] > 0x7f {
			return fmt.Errorf("file code %q is not ASCII", code)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file code target: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("file code target %q: %w", path, fs.ErrNotExist)
	}

	padded := make([]byte, fileCodeLen)
	copy(padded, code)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	if _, err := f.WriteAt(padded, fileCodeOffset); err != nil {
		f.Close()
		return fmt.Errorf("write file code to %q: %w", path, err)
	}
	return f.Close()
}
