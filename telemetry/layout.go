package telemetry

import (
	"encoding/binary"

	"ktkr.us/pkg/dashcam/camera"
)

const (
	reservedSize = 4   // unknown prefix of every record, always zero so far
	sentenceSize = 128 // fixed width of each embedded NMEA sentence
)

// layout describes the part of a record that follows the reserved prefix.
// Acceleration is three little endian signed integers in Y, X, Z order,
// followed later by a GPRMC and a GPGGA sentence.
type layout struct {
	size  int     // bytes after the reserved prefix
	accel int     // offset of Y
	width int     // 2 or 4 bytes per axis
	scale float64 // raw units per g
	nmea  int     // offset of GPRMC; GPGGA follows it
}

var layouts = map[camera.Format]layout{
	// 16 unknown, 3×int32, GPRMC, GPGGA
	camera.VariantA: {size: 284, accel: 16, width: 4, scale: 1280, nmea: 28},
	// 24 unknown, 3×int16, 756 unknown, GPRMC, GPGGA
	camera.VariantB: {size: 1042, accel: 24, width: 2, scale: 2048, nmea: 786},
}

// axis returns acceleration value i (0 Y, 1 X, 2 Z) of p as stored.
func (l layout) axis(p []byte, i int) float64 {
	off := l.accel + i*l.width
	var v int32
	switch l.width {
	case 2:
		v = int32(int16(binary.LittleEndian.Uint16(p[off:])))
	case 4:
		v = int32(binary.LittleEndian.Uint32(p[off:]))
	}
	return float64(v) / l.scale
}

func (l layout) sentences(p []byte) (rmc, gga []byte) {
	rmc = p[l.nmea : l.nmea+sentenceSize]
	gga = p[l.nmea+sentenceSize : l.nmea+2*sentenceSize]
	return
}
