package stats

import "strconv"

var byteUnits = [...]string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes renders n as a human-readable byte count into buf and returns
// the used prefix of buf. The caller owns the buffer; nothing is allocated
// for the common case of a buffer with enough capacity.
func FormatBytes(buf []byte, n uint64) []byte {
	buf = buf[:0]
	if n < 1024 {
		buf = strconv.AppendUint(buf, n, 10)
		return append(buf, " B"...)
	}
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	buf = strconv.AppendFloat(buf, v, 'f', 1, 64)
	buf = append(buf, ' ')
	return append(buf, byteUnits[unit]...)
}
