package activpal

import (
	"fmt"
	"time"
)

// minHeaderLen is the number of header bytes ExtractMetadata actually
// consumes; the highest offset read is 519 (last byte of the file code).
// The on-disk header block is larger (1023 bytes for .dat, 1024 for
// .datx) but only this prefix carries decoded fields.
const minHeaderLen = 520

// Metadata holds the fields decoded from the fixed-layout header of an
// activPAL raw data file. Lenient enumerations (Resolution, Axes,
// StartCondition, StopCondition) keep their zero value when the header
// carries a code outside the device's documented tables.
type Metadata struct {
	Firmware   int
	BitDepth   int // 8 or 10
	Resolution int // measurement range in g: 2, 4 or 8; 0 when unmapped
	Hz         int // sample rate, raw byte value
	Axes       int // 3 or 1; 0 when unmapped
	StartTime  time.Time
	StopTime   time.Time
	Duration   time.Duration // StopTime - StartTime, may be negative
	StartCond  string        // "" when unmapped
	StopCond   string        // "" when unmapped
	FileCode   string        // up to 8 ASCII chars, zero bytes removed
	DeviceID   int
}

var (
	resolutionByCode = map[byte]int{0: 2, 1: 4, 2: 8}
	axesByCode       = map[byte]int{0: 3, 1: 1}
	startConditions  = map[byte]string{0: "Trigger", 1: "Immediately", 2: "Set Time"}
	stopConditions   = map[byte]string{0: "Memory Full", 3: "Low Battery", 64: "USB", 128: "Programmed Time"}
)

// ExtractMetadata decodes the header block of an activPAL raw data file.
// It is a pure function over the supplied bytes; the slice is not retained.
func ExtractMetadata(header []byte) (Metadata, error) {
	if len(header) < minHeaderLen {
		return Metadata{}, fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderTooShort, len(header), minHeaderLen)
	}

	// The device stores the firmware version across two bytes with the
	// high byte scaled by 255, not 256. Matches the on-device encoder.
	firmware := int(header[39])*255 + int(header[17])

	bitDepth := 8
	resolutionCode := header[38]
	if resolutionCode >= 128 {
		bitDepth = 10
		resolutionCode -= 128
	}

	start, err := headerTime(header[261], header[260], header[259], header[256], header[257], header[258])
	if err != nil {
		return Metadata{}, fmt.Errorf("start time: %w", err)
	}
	stop, err := headerTime(header[267], header[266], header[265], header[262], header[263], header[264])
	if err != nil {
		return Metadata{}, fmt.Errorf("stop time: %w", err)
	}

	// Every zero byte in the 8-byte code field is removed, wherever it
	// sits; the field is not null-terminated.
	code := make([]byte, 0, 8)
	for _, b := range header[512:520] {
		if b != 0 {
			code = append(code, b)
		}
	}

	// Byte 10 is a year code (12 for 2012, 4 for 2014, ...); the device
	// id starts with the last digit of that year.
	deviceID := int(header[10]%10)*100000 +
		int(header[14])*10000 +
		int(header[40])*4096 +
		int(header[11])*256 +
		int(header[12])*16 +
		int(header[13])

	return Metadata{
		Firmware:   firmware,
		BitDepth:   bitDepth,
		Resolution: resolutionByCode[resolutionCode],
		Hz:         int(header[35]),
		Axes:       axesByCode[header[280]],
		StartTime:  start,
		StopTime:   stop,
		Duration:   stop.Sub(start),
		StartCond:  startConditions[header[268]],
		StopCond:   stopConditions[header[275]],
		FileCode:   string(code),
		DeviceID:   deviceID,
	}, nil
}

// headerTime builds a calendar timestamp from single-byte header fields.
// time.Date silently normalises out-of-range components, so the result
// is compared back against the inputs to reject impossible dates.
func headerTime(year, month, day, hour, minute, second byte) (time.Time, error) {
	t := time.Date(int(year)+2000, time.Month(month), int(day),
		int(hour), int(minute), int(second), 0, time.UTC)
	if t.Year() != int(year)+2000 || t.Month() != time.Month(month) || t.Day() != int(day) ||
		t.Hour() != int(hour) || t.Minute() != int(minute) || t.Second() != int(second) {
		return time.Time{}, fmt.Errorf("%w: %d-%02d-%02d %02d:%02d:%02d",
			ErrInvalidDate, int(year)+2000, month, day, hour, minute, second)
	}
	return t, nil
}
