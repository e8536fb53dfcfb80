package marker

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"palflow/models"
)

func readMarks(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open marks: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read marks: %v", err)
	}
	return records
}

func TestAppendMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marks.csv")
	when := time.Date(2017, 3, 15, 9, 30, 5, 0, time.UTC)

	first := models.Mark{File: "walk.datx", Sample: 1234, DateTime: when, Confidence: 8}
	second := models.Mark{File: "walk.datx", Sample: 5678, DateTime: when.Add(time.Minute)}

	if err := AppendMark(path, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := AppendMark(path, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	records := readMarks(t, path)
	want := [][]string{
		{"File", "Sample", "DateTime", "Confidence"},
		{"walk.datx", "1234", "2017-03-15 09:30:05", "8"},
		{"walk.datx", "5678", "2017-03-15 09:31:05", ""},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("marks = %v, want %v", records, want)
	}
}

func TestAppendMarkConfidenceRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marks.csv")

	for _, confidence := range []int{-1, 11} {
		m := models.Mark{File: "a.dat", Sample: 1, DateTime: time.Now(), Confidence: confidence}
		if err := AppendMark(path, m); err == nil {
			t.Errorf("confidence %d: expected error", confidence)
		}
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("rejected marks must not create the file")
	}
}
