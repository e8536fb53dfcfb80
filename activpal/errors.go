package activpal

import "errors"

var (
	// ErrUnsupportedFormat is returned by Load for any extension other
	// than .dat or .datx.
	ErrUnsupportedFormat = errors.New("unsupported file extension")

	// ErrHeaderTooShort is returned when fewer header bytes are supplied
	// than the highest decoded offset requires.
	ErrHeaderTooShort = errors.New("header too short")

	// ErrInvalidDate is returned when a start or stop timestamp in the
	// header carries an out-of-range calendar field.
	ErrInvalidDate = errors.New("invalid date in header")

	// ErrRepeatWithoutSample is returned by DecodeBody when an invalid or
	// compressed group appears before any normal sample has been decoded,
	// so there is no previous row to duplicate.
	ErrRepeatWithoutSample = errors.New("repeat marker before any decoded sample")

	// ErrCodeTooLong is returned by SetFileCode for codes over 8 characters.
	ErrCodeTooLong = errors.New("file code longer than 8 characters")
)
