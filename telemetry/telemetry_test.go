package telemetry

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ktkr.us/pkg/dashcam"
	"ktkr.us/pkg/dashcam/camera"
)

const (
	rmc = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,*6A"
	gga = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

// record builds a length prefixed record for format f.
func record(f camera.Format, y, x, z int32, rmc, gga string) []byte {
	l := layouts[f]
	p := make([]byte, reservedSize+l.size)
	body := p[reservedSize:]
	for i, v := range []int32{y, x, z} {
		off := l.accel + i*l.width
		switch l.width {
		case 2:
			binary.LittleEndian.PutUint16(body[off:], uint16(int16(v)))
		case 4:
			binary.LittleEndian.PutUint32(body[off:], uint32(v))
		}
	}
	copy(body[l.nmea:l.nmea+sentenceSize], rmc)
	copy(body[l.nmea+sentenceSize:], gga)
	return raw(p)
}

// raw prefixes p with its length.
func raw(p []byte) []byte {
	b := make([]byte, 2, 2+len(p))
	binary.BigEndian.PutUint16(b, uint16(len(p)))
	return append(b, p...)
}

func stream(records ...[]byte) *bytes.Reader {
	return bytes.NewReader(bytes.Join(records, nil))
}

func checkSample(t *testing.T, s dashcam.Sample) {
	t.Helper()
	require.True(t, s.Valid)
	require.Equal(t, time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC), s.Time)
	require.InDelta(t, 48.1173, s.Latitude, 1e-4)
	require.InDelta(t, 11.5167, s.Longitude, 1e-4)
	require.InDelta(t, 11.52, s.Speed, 1e-2)
	require.Equal(t, 84.4, s.Bearing)
	require.Equal(t, 8, s.Satellites)
	require.Equal(t, 0.9, s.HDOP)
	require.Equal(t, 545.4, s.Altitude)
	require.Equal(t, 46.9, s.GeoidHeight)
}

func TestLayouts(t *testing.T) {
	for f, l := range layouts {
		require.True(t, f.Decodable(), f)
		require.Equal(t, l.size, l.nmea+2*sentenceSize, f)
		require.LessOrEqual(t, l.accel+3*l.width, l.nmea, f)
	}
	require.Equal(t, 284, layouts[camera.VariantA].size)
	require.Equal(t, 1042, layouts[camera.VariantB].size)
}

func TestDecoderVariantA(t *testing.T) {
	r := stream(
		record(camera.VariantA, 1280, -640, 2560, rmc, gga),
		raw(make([]byte, reservedSize)),
		raw(nil),
		record(camera.VariantA, 0, 0, -1280, rmc, gga),
	)
	d, err := NewDecoder(r, "322GW")
	require.NoError(t, err)
	require.Equal(t, camera.VariantA, d.Format())

	s, err := d.Next()
	require.NoError(t, err)
	checkSample(t, s)
	require.Equal(t, -1.0, s.YAcc)
	require.Equal(t, -0.5, s.XAcc)
	require.Equal(t, 2.0, s.ZAcc)
	require.EqualValues(t, 2+reservedSize+284, d.Offset())

	s, err = d.Next()
	require.NoError(t, err)
	checkSample(t, s)
	require.Equal(t, 0.0, s.YAcc)
	require.Equal(t, -1.0, s.ZAcc)

	_, err = d.Next()
	require.Equal(t, io.EOF, err)
	_, err = d.Next()
	require.Equal(t, io.EOF, err)
	require.EqualValues(t, r.Size(), d.Offset())
}

func TestDecoderVariantB(t *testing.T) {
	d, err := NewDecoder(stream(record(camera.VariantB, 2048, -1024, 4096, rmc, gga)), "622GW")
	require.NoError(t, err)
	require.Equal(t, camera.VariantB, d.Format())

	s, err := d.Next()
	require.NoError(t, err)
	checkSample(t, s)
	require.Equal(t, -1.0, s.YAcc)
	require.Equal(t, -0.5, s.XAcc)
	require.Equal(t, 2.0, s.ZAcc)

	_, err = d.Next()
	require.Equal(t, io.EOF, err)
}

func TestDecoderNoFix(t *testing.T) {
	d, err := NewDecoder(stream(record(camera.VariantA, 0, 0, 1280, "$GPRMC,,V,,,,,,,,,,N*53", "$GPGGA,,,,,,0,00,,,M,,M,,*66")), "422GW")
	require.NoError(t, err)

	s, err := d.Next()
	require.NoError(t, err)
	require.False(t, s.HasTime())
	require.False(t, s.HasPosition())
	require.True(t, math.IsNaN(s.Altitude))
	require.Equal(t, 1.0, s.ZAcc)
}

func TestDecoderPaddedSentences(t *testing.T) {
	d, err := NewDecoder(stream(record(camera.VariantA, 0, 0, 0, rmc+"\r\n    ", "  "+gga+"\r\n")), "522GW")
	require.NoError(t, err)

	s, err := d.Next()
	require.NoError(t, err)
	checkSample(t, s)
}

func TestDecoderOnlyEmptyRecords(t *testing.T) {
	r := stream(raw(nil), raw(make([]byte, 4)), raw([]byte{1, 2}))
	d, err := NewDecoder(r, "322GW")
	require.NoError(t, err)

	_, err = d.Next()
	require.Equal(t, io.EOF, err)
	require.EqualValues(t, r.Size(), d.Offset())
}

func TestDecoderStartOffset(t *testing.T) {
	junk := []byte("skip")
	r := stream(junk, record(camera.VariantA, 0, 0, 0, rmc, gga))
	_, err := r.Seek(int64(len(junk)), io.SeekStart)
	require.NoError(t, err)

	d, err := NewDecoder(r, "322GW")
	require.NoError(t, err)
	require.EqualValues(t, len(junk), d.Offset())

	samples, err := ReadAll(d)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	checkSample(t, samples[0])
}

func TestDecoderUnsupported(t *testing.T) {
	for _, model := range []string{"312GW", "DUO", "NOPE", ""} {
		d, err := NewDecoder(stream(), model)
		require.ErrorIs(t, err, dashcam.ErrUnsupportedFormat, model)
		require.Nil(t, d)
	}
}

func TestDecoderRegistry(t *testing.T) {
	reg := camera.NewRegistry(map[string]camera.Format{"722GW": camera.VariantB})
	d, err := NewDecoderWithRegistry(stream(record(camera.VariantB, 0, 0, 0, rmc, gga)), "722GW", reg)
	require.NoError(t, err)

	s, err := d.Next()
	require.NoError(t, err)
	checkSample(t, s)

	_, err = NewDecoder(stream(), "722GW")
	require.ErrorIs(t, err, dashcam.ErrUnsupportedFormat)
}

func TestDecoderTruncated(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		full := record(camera.VariantA, 0, 0, 0, rmc, gga)
		d, err := NewDecoder(stream(full[:100]), "322GW")
		require.NoError(t, err)

		_, err = d.Next()
		require.ErrorIs(t, err, dashcam.ErrTruncated)
		_, err = d.Next()
		require.ErrorIs(t, err, dashcam.ErrTruncated)
	})
	t.Run("length", func(t *testing.T) {
		d, err := NewDecoder(stream(record(camera.VariantA, 0, 0, 0, rmc, gga), []byte{0}), "322GW")
		require.NoError(t, err)

		_, err = d.Next()
		require.NoError(t, err)
		_, err = d.Next()
		require.ErrorIs(t, err, dashcam.ErrTruncated)
	})
	t.Run("emptyRecord", func(t *testing.T) {
		d, err := NewDecoder(stream([]byte{0, 4, 0, 0}), "322GW")
		require.NoError(t, err)

		_, err = d.Next()
		require.ErrorIs(t, err, dashcam.ErrTruncated)
	})
}

func TestDecoderMalformed(t *testing.T) {
	// A variant B record read as variant A.
	d, err := NewDecoder(stream(record(camera.VariantB, 0, 0, 0, rmc, gga), record(camera.VariantA, 0, 0, 0, rmc, gga)), "322GW")
	require.NoError(t, err)

	_, err = d.Next()
	require.ErrorIs(t, err, dashcam.ErrMalformed)
	_, err = d.Next()
	require.ErrorIs(t, err, dashcam.ErrMalformed)

	d, err = NewDecoder(stream(raw(make([]byte, reservedSize+1))), "322GW")
	require.NoError(t, err)
	_, err = d.Next()
	require.ErrorIs(t, err, dashcam.ErrMalformed)
}

func TestDecoderBadSentence(t *testing.T) {
	bad := "$GPRMC,123519,A,48x7.038,N,01131.000,E,022.4,084.4,230394,,"
	r := stream(
		record(camera.VariantA, 0, 0, 0, bad, gga),
		record(camera.VariantA, 0, 0, 0, rmc, "$GPGGA,123519"),
		record(camera.VariantA, 0, 0, 0, rmc, gga),
	)
	d, err := NewDecoder(r, "322GW")
	require.NoError(t, err)

	_, err = d.Next()
	require.ErrorIs(t, err, dashcam.ErrSentenceParse)
	_, err = d.Next()
	require.ErrorIs(t, err, dashcam.ErrSentenceParse)

	s, err := d.Next()
	require.NoError(t, err)
	checkSample(t, s)

	_, err = d.Next()
	require.Equal(t, io.EOF, err)
}

func TestReadAllStopsOnError(t *testing.T) {
	r := stream(
		record(camera.VariantA, 0, 0, 0, rmc, gga),
		record(camera.VariantA, 0, 0, 0, "$GPRMC,x", gga),
		record(camera.VariantA, 0, 0, 0, rmc, gga),
	)
	d, err := NewDecoder(r, "322GW")
	require.NoError(t, err)

	samples, err := ReadAll(d)
	require.ErrorIs(t, err, dashcam.ErrSentenceParse)
	require.Len(t, samples, 1)
}
