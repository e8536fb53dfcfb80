package activpal

// Sample is one decoded accelerometer row. Values are the raw device
// bytes in [0,255]; Recording applies the g conversion.
type Sample struct {
	X, Y, Z uint8
}

// Firmware versions below this store run lengths off by one: a (0,0,n)
// group means n+1 repeats instead of n.
const runLengthAdjustBefore = 218

// DecodeBody decompresses the body section of an activPAL raw data file
// into one Sample per row. The body is scanned once, forward, in 3-byte
// groups:
//
//   - the tail marker ("tail" in .datx files, an 8-byte zero/positive
//     pattern in .dat files) ends the scan; anything after it is ignored
//   - (255,255,255) repeats the previous row once
//   - (0,0,n) repeats the previous row n times (n+1 on old firmware)
//   - anything else is emitted verbatim
//
// Any byte pattern outside those rules is a normal sample, so the decoder
// is total over arbitrary input, with one exception: a repeat group before
// any decoded row fails with ErrRepeatWithoutSample.
func DecodeBody(body []byte, firmware int, datx bool) ([]Sample, error) {
	// A single compressed group can expand to 255 rows, one more on old
	// firmware where (0,0,n) means n+1 repeats. Size the output arena for
	// the worst case up front and slice it down at the end.
	n := len(body)
	adjust := firmware < runLengthAdjustBefore
	groupMax := 255
	if adjust {
		groupMax = 256
	}
	out := make([]Sample, (n/3)*groupMax)

	row := 0
	for i := 0; i+3 <= n; i += 3 {
		x, y, z := body[i], body[i+1], body[i+2]

		var tail bool
		if datx {
			tail = x == 't' && y == 'a' && z == 'i' && i+3 < n && body[i+3] == 'l'
		} else {
			tail = x == 0 && y == 0 && z > 0 && i+7 < n &&
				body[i+3] == 0 && body[i+4] == 0 &&
				body[i+5] > 0 && body[i+6] > 0 && body[i+7] == 0
		}
		if tail {
			break
		}

		switch {
		case x == 255 && y == 255 && z == 255:
			if row == 0 {
				return nil, ErrRepeatWithoutSample
			}
			out[row] = out[row-1]
			row++
		case x == 0 && y == 0:
			if row == 0 {
				return nil, ErrRepeatWithoutSample
			}
			repeats := int(z)
			if adjust {
				repeats++
			}
			prev := out[row-1]
			for r := 0; r < repeats; r++ {
				out[row] = prev
				row++
			}
		default:
			out[row] = Sample{X: x, Y: y, Z: z}
			row++
		}
	}
	return out[:row:row], nil
}
