package models

import (
	"time"

	"palflow/activpal"
)

// RawRecording carries one decoded file from the decode stage to the
// flattener.
type RawRecording struct {
	SourceFile string
	Recording  *activpal.Recording
	DecodedAt  time.Time
}

// SampleRow is a single flattened accelerometer row ready for export.
type SampleRow struct {
	SourceFile string    `json:"source_file"`
	DeviceID   int       `json:"device_id"`
	FileCode   string    `json:"file_code"`
	Sample     int64     `json:"sample"`
	Timestamp  time.Time `json:"timestamp"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	RSS        float64   `json:"rss"`
}

// SampleBatch groups flattened rows from one source file for the writer.
type SampleBatch struct {
	BatchID     string      `json:"batch_id"`
	SourceFile  string      `json:"source_file"`
	DeviceID    int         `json:"device_id"`
	FileCode    string      `json:"file_code"`
	Rows        []SampleRow `json:"rows"`
	RecordCount int         `json:"record_count"`
	Timestamp   time.Time   `json:"timestamp"`
	ProcessedAt time.Time   `json:"processed_at"`
}

// Mark is one annotated point on a recording's magnitude channel.
type Mark struct {
	File       string    `json:"file"`
	Sample     int64     `json:"sample"`
	DateTime   time.Time `json:"datetime"`
	Confidence int       `json:"confidence"` // 1-10; 0 when not rated
}
