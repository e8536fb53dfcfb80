package marker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"palflow/models"
)

// markTimeFormat is the timestamp layout used in mark records.
const markTimeFormat = "2006-01-02 15:04:05"

var markHeader = []string{"File", "Sample", "DateTime", "Confidence"}

// AppendMark appends one marked point to the CSV file at path, creating
// the file and writing the header row only when it does not already
// exist. A zero Confidence is recorded as an empty field.
func AppendMark(path string, m models.Mark) error {
	if m.Confidence < 0 || m.Confidence > 10 {
		return fmt.Errorf("confidence %d out of range 1-10", m.Confidence)
	}

	_, statErr := os.Stat(path)
	writeHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open marks file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(markHeader); err != nil {
			f.Close()
			return fmt.Errorf("write marks header: %w", err)
		}
	}

	confidence := ""
	if m.Confidence != 0 {
		confidence = strconv.Itoa(m.Confidence)
	}
	record := []string{
		m.File,
		strconv.FormatInt(m.Sample, 10),
		m.DateTime.Format(markTimeFormat),
		confidence,
	}
	if err := w.Write(record); err != nil {
		f.Close()
		return fmt.Errorf("write mark: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush marks file %q: %w", path, err)
	}
	return f.Close()
}
