// Package mp4 locates and extracts metadata boxes in MP4 files, and appends to
// the user data box of a file in place.
//
// Every query walks the box tree from the start of the file. Nothing is
// cached between queries.
package mp4

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/dashcam"
)

// File wraps a caller-owned seekable handle. It never closes the handle.
type File struct {
	rs io.ReadSeeker
}

// NewFile returns a File reading from rs. If rs also implements io.Writer,
// AppendUdta can modify it.
func NewFile(rs io.ReadSeeker) *File {
	return &File{rs}
}

func (f *File) size() (int64, error) {
	n, err := f.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrapf(dashcam.ErrIO, "find file size: %v", err)
	}
	return n, nil
}

/*
walk scans boxes from the start of the file:

	read header
	if type is descend[depth]
	  bound the scan to the end of this box and read its children
	else
	  skip the payload

The scan ends at the end of the file or the end of the innermost box
entered, whichever comes first. Sibling boxes after an entered box are
never visited.

visit is called for every header. If it returns true, walk stops with the
reader positioned at the start of that box's payload.
*/
func (f *File) walk(descend []BoxType, visit func(b Box, container bool) bool) (bool, error) {
	size, err := f.size()
	if err != nil {
		return false, err
	}
	if _, err := f.rs.Seek(0, io.SeekStart); err != nil {
		return false, errors.Wrapf(dashcam.ErrIO, "seek to start: %v", err)
	}

	var (
		pos   int64
		end   = size
		depth int
	)
	for pos < end {
		h, err := ReadHeader(f.rs)
		if err != nil {
			return false, errors.WithMessagef(err, "offset %d", pos)
		}
		b := Box{Header: h, Offset: pos, Depth: depth}
		container := depth < len(descend) && h.Type == descend[depth]
		if visit(b, container) {
			return true, nil
		}
		pos += HeaderSize

		if container {
			if e := b.End(); e < end {
				end = e
			}
			depth++
			continue
		}

		if b.End() > size {
			return false, errors.Wrapf(dashcam.ErrTruncated, "%s box at offset %d ends past end of file (%d > %d)",
				h.Type, b.Offset, b.End(), size)
		}
		if _, err := f.rs.Seek(int64(h.PayloadSize()), io.SeekCurrent); err != nil {
			return false, errors.Wrapf(dashcam.ErrIO, "skip %s box: %v", h.Type, err)
		}
		pos = b.End()
	}
	return false, nil
}

// find locates target inside the chain of boxes named by descend. Boxes
// named target outside the innermost container are ignored. It returns the
// container boxes entered on the way even when target is not found.
func (f *File) find(target BoxType, descend ...BoxType) (Box, []Box, error) {
	var (
		found   Box
		parents []Box
	)
	ok, err := f.walk(descend, func(b Box, container bool) bool {
		if container {
			parents = append(parents, b)
			return false
		}
		if b.Type == target && b.Depth == len(descend) {
			found = b
			return true
		}
		return false
	})
	if err != nil {
		return Box{}, parents, err
	}
	if !ok {
		missing := target
		if len(parents) < len(descend) {
			missing = descend[len(parents)]
		}
		return Box{}, parents, errors.Wrapf(dashcam.ErrNotFound, "no %s box", missing)
	}
	return found, parents, nil
}

// readPayload reads the whole payload of b.
func (f *File) readPayload(b Box) ([]byte, error) {
	size, err := f.size()
	if err != nil {
		return nil, err
	}
	if b.End() > size {
		return nil, errors.Wrapf(dashcam.ErrTruncated, "%s box at offset %d ends past end of file (%d > %d)",
			b.Type, b.Offset, b.End(), size)
	}
	if _, err := f.rs.Seek(b.Offset+HeaderSize, io.SeekStart); err != nil {
		return nil, errors.Wrapf(dashcam.ErrIO, "seek to %s payload: %v", b.Type, err)
	}

	buf := make([]byte, b.PayloadSize())
	if _, err := io.ReadFull(f.rs, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(dashcam.ErrTruncated, "read %s payload", b.Type)
		}
		return nil, errors.Wrapf(dashcam.ErrIO, "read %s payload: %v", b.Type, err)
	}
	return buf, nil
}

// ReadUdta returns the payload of the user data box inside moov.
func (f *File) ReadUdta() ([]byte, error) {
	b, _, err := f.find(TypeUdta, TypeMoov)
	if err != nil {
		return nil, errors.WithMessage(err, "locate camera data")
	}
	return f.readPayload(b)
}

// ReadInfoString returns the contents of moov/udta/info, the camera
// identification string. The payload is decoded as Latin-1.
func (f *File) ReadInfoString() (string, error) {
	b, _, err := f.find(TypeInfo, TypeMoov, TypeUdta)
	if err != nil {
		return "", errors.WithMessage(err, "locate camera info")
	}
	p, err := f.readPayload(b)
	if err != nil {
		return "", err
	}

	r := make([]rune, len(p))
	for i, c := range p {
		r[i] = rune(c)
	}
	return string(r), nil
}

// ReadDuration returns the movie duration in seconds from the mvhd box. On
// failure it returns NaN along with the error.
func (f *File) ReadDuration() (float64, error) {
	b, _, err := f.find(TypeMvhd, TypeMoov)
	if err != nil {
		return math.NaN(), errors.WithMessage(err, "locate duration")
	}
	p, err := f.readPayload(b)
	if err != nil {
		return math.NaN(), err
	}
	d, err := parseMvhdDuration(p)
	if err != nil {
		return math.NaN(), errors.WithMessage(err, "read duration")
	}
	return d, nil
}

func parseMvhdDuration(p []byte) (float64, error) {
	if len(p) < 4 {
		return 0, errors.Wrapf(dashcam.ErrTruncated, "mvhd payload is %d bytes", len(p))
	}

	var (
		timescale uint32
		duration  uint64
	)
	// Version and flags are read as one word.
	switch v := binary.BigEndian.Uint32(p); v {
	case 0:
		if len(p) < 20 {
			return 0, errors.Wrapf(dashcam.ErrTruncated, "mvhd v0 payload is %d bytes", len(p))
		}
		timescale = binary.BigEndian.Uint32(p[12:])
		duration = uint64(binary.BigEndian.Uint32(p[16:]))
	case 1:
		if len(p) < 32 {
			return 0, errors.Wrapf(dashcam.ErrTruncated, "mvhd v1 payload is %d bytes", len(p))
		}
		timescale = binary.BigEndian.Uint32(p[20:])
		duration = binary.BigEndian.Uint64(p[24:])
	default:
		return 0, errors.Wrapf(dashcam.ErrMalformed, "unsupported mvhd version %d", v)
	}

	if timescale == 0 {
		return 0, errors.Wrap(dashcam.ErrMalformed, "mvhd timescale is zero")
	}
	return float64(duration) / float64(timescale), nil
}

// DurationOf converts seconds as returned by ReadDuration to a time.Duration.
func DurationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Boxes lists the boxes the locator visits: top level boxes up to and
// including moov, then everything inside moov with udta expanded.
func (f *File) Boxes() ([]Box, error) {
	var boxes []Box
	_, err := f.walk([]BoxType{TypeMoov, TypeUdta}, func(b Box, _ bool) bool {
		boxes = append(boxes, b)
		return false
	})
	return boxes, err
}

// AppendUdta appends data to the end of the user data box and grows the moov
// and udta length fields to match, without rewriting the file.
//
// This only works when udta is the last box in the file, so nothing after it
// moves. Otherwise it fails with dashcam.ErrPrecondition before writing
// anything. A failed write can leave the file partially updated.
func (f *File) AppendUdta(data []byte) error {
	w, ok := f.rs.(io.Writer)
	if !ok {
		return errors.Wrap(dashcam.ErrIO, "file is not writable")
	}

	udta, parents, err := f.find(TypeUdta, TypeMoov)
	if err != nil {
		return errors.WithMessage(err, "locate camera data")
	}
	moov := parents[0]

	size, err := f.size()
	if err != nil {
		return err
	}
	if udta.End() != size {
		return errors.Wrapf(dashcam.ErrPrecondition, "udta box ends at %d, file size is %d", udta.End(), size)
	}

	n := uint64(len(data))
	newMoov := moov.Length + n
	newUdta := udta.Length + n
	if newMoov > math.MaxUint32 {
		return errors.Wrapf(dashcam.ErrPrecondition, "moov box would grow to %d bytes", newMoov)
	}

	if err := f.writeAt(w, moov.Offset, be32(uint32(newMoov))); err != nil {
		return errors.WithMessage(err, "moov length")
	}
	if err := f.writeAt(w, udta.Offset, be32(uint32(newUdta))); err != nil {
		return errors.WithMessage(err, "udta length")
	}
	if err := f.writeAt(w, size, data); err != nil {
		return errors.WithMessage(err, "udta payload")
	}
	return nil
}

func (f *File) writeAt(w io.Writer, off int64, p []byte) error {
	if _, err := f.rs.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(dashcam.ErrIO, "seek to %d: %v", off, err)
	}
	n, err := w.Write(p)
	if err != nil {
		return errors.Wrapf(dashcam.ErrIO, "write at %d: %v", off, err)
	}
	if n != len(p) {
		return errors.Wrapf(dashcam.ErrIO, "short write at %d: %d of %d bytes", off, n, len(p))
	}
	return nil
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
