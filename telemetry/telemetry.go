// Package telemetry decodes the GPS and accelerometer stream that dashcams
// record alongside their video.
//
// The stream is a sequence of records, each a big endian uint16 length
// followed by that many bytes. Records of four bytes or fewer carry no
// sample. The rest start with four reserved bytes and then follow the
// layout for the camera's format.
package telemetry

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"

	"ktkr.us/pkg/dashcam"
	"ktkr.us/pkg/dashcam/camera"
	"ktkr.us/pkg/dashcam/nmea"
)

// Decoder reads samples from a telemetry stream. It does not close the
// stream.
type Decoder struct {
	r      *bufio.Reader
	format camera.Format
	layout layout

	pos  int64 // offset of the next unread byte
	size int64
	buf  []byte
	err  error // set once the decoder can go no further
}

// NewDecoder returns a decoder for the stream in r, starting at its current
// position, written by the given camera model. It fails with
// dashcam.ErrUnsupportedFormat if the model's telemetry can't be decoded.
func NewDecoder(r io.ReadSeeker, model string) (*Decoder, error) {
	return NewDecoderWithRegistry(r, model, nil)
}

// NewDecoderWithRegistry is like NewDecoder but resolves the model with reg.
func NewDecoderWithRegistry(r io.ReadSeeker, model string, reg *camera.Registry) (*Decoder, error) {
	f := reg.Lookup(model)
	l, ok := layouts[f]
	if !ok {
		return nil, errors.Wrapf(dashcam.ErrUnsupportedFormat, "camera %q (format %s)", model, f)
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrapf(dashcam.ErrIO, "find stream position: %v", err)
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrapf(dashcam.ErrIO, "find stream size: %v", err)
	}
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return nil, errors.Wrapf(dashcam.ErrIO, "seek back to %d: %v", pos, err)
	}

	return &Decoder{
		r:      bufio.NewReader(r),
		format: f,
		layout: l,
		pos:    pos,
		size:   size,
	}, nil
}

// Format returns the record layout in use.
func (d *Decoder) Format() camera.Format { return d.format }

// Offset returns the stream offset of the next record.
func (d *Decoder) Offset() int64 { return d.pos }

// Next returns the next sample. At the end of the stream it returns io.EOF.
//
// If a record's NMEA sentences can't be parsed, Next returns an error
// wrapping dashcam.ErrSentenceParse; the record has been consumed and the
// caller may keep calling Next. Any other error is final and is returned by
// every later call.
func (d *Decoder) Next() (dashcam.Sample, error) {
	for d.err == nil {
		s, ok, err := d.next()
		if err != nil {
			if !errors.Is(err, dashcam.ErrSentenceParse) {
				d.err = err
			}
			return dashcam.NewSample(), err
		}
		if ok {
			return s, nil
		}
	}
	return dashcam.NewSample(), d.err
}

// next reads one record. ok is false for records that carry no sample.
func (d *Decoder) next() (s dashcam.Sample, ok bool, err error) {
	if d.pos >= d.size {
		return s, false, io.EOF
	}

	var lenBuf [2]byte
	if err := d.read(lenBuf[:]); err != nil {
		return s, false, errors.WithMessagef(err, "record length at offset %d", d.pos)
	}
	start := d.pos
	n := int64(binary.BigEndian.Uint16(lenBuf[:]))
	if start+n > d.size {
		return s, false, errors.Wrapf(dashcam.ErrTruncated, "record at offset %d is %d bytes, %d left in stream",
			start, n, d.size-start)
	}

	if n <= reservedSize {
		if _, err := d.r.Discard(int(n)); err != nil {
			return s, false, errors.Wrapf(dashcam.ErrTruncated, "skip empty record at offset %d: %v", start, err)
		}
		d.pos += n
		return s, false, nil
	}

	if int64(cap(d.buf)) < n {
		d.buf = make([]byte, n)
	}
	p := d.buf[:n]
	if err := d.read(p); err != nil {
		return s, false, errors.WithMessagef(err, "record at offset %d", start)
	}

	s, err = d.decode(p[reservedSize:])
	if err != nil {
		return s, false, errors.WithMessagef(err, "record at offset %d", start)
	}
	return s, true, nil
}

func (d *Decoder) read(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.pos += int64(n)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(dashcam.ErrTruncated, "read %d bytes", len(p))
	}
	if err != nil {
		return errors.Wrapf(dashcam.ErrIO, "read %d bytes: %v", len(p), err)
	}
	return nil
}

// decode decodes a record without its reserved prefix.
func (d *Decoder) decode(p []byte) (dashcam.Sample, error) {
	l := d.layout
	if len(p) != l.size {
		return dashcam.Sample{}, errors.Wrapf(dashcam.ErrMalformed, "record is %d bytes, format %s needs %d",
			len(p), d.format, l.size)
	}

	s := dashcam.NewSample()
	s.YAcc = -l.axis(p, 0)
	s.XAcc = l.axis(p, 1)
	s.ZAcc = l.axis(p, 2)

	rmc, gga := l.sentences(p)
	if err := nmea.ParseRMC(sentence(rmc), &s); err != nil {
		return dashcam.Sample{}, errors.WithMessage(err, "GPRMC")
	}
	if err := nmea.ParseGGA(sentence(gga), &s); err != nil {
		return dashcam.Sample{}, errors.WithMessage(err, "GPGGA")
	}
	return s, nil
}

// sentence returns the NUL terminated, space padded text in b.
func sentence(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// ReadAll decodes samples until the end of the stream or the first error.
func ReadAll(d *Decoder) ([]dashcam.Sample, error) {
	var samples []dashcam.Sample
	for {
		s, err := d.Next()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return samples, err
		}
		samples = append(samples, s)
	}
}
