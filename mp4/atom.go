package mp4

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"ktkr.us/pkg/dashcam"
)

// HeaderSize is the size of a compact box header: 32-bit length and tag.
const HeaderSize = 8

// BoxType is a four character box tag. Tags are compared byte for byte.
type BoxType [4]byte

// StrToBoxType converts a four character string to a BoxType.
func StrToBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

func (t BoxType) String() string { return string(t[:]) }

// Box types the locator knows about.
var (
	TypeMoov = StrToBoxType("moov")
	TypeUdta = StrToBoxType("udta")
	TypeMvhd = StrToBoxType("mvhd")
	TypeInfo = StrToBoxType("info")
)

// Header is a box header. Length includes the header itself.
type Header struct {
	Length uint64
	Type   BoxType
}

// PayloadSize returns the number of bytes following the header.
func (h Header) PayloadSize() uint64 {
	return h.Length - HeaderSize
}

// Box is a header along with where it was found.
type Box struct {
	Header
	Offset int64 // file offset of the first header byte
	Depth  int   // number of enclosing boxes
}

// End returns the offset just past the last byte of the box.
func (b Box) End() int64 {
	return b.Offset + int64(b.Length)
}

// ReadHeader reads one box header from r. On success exactly HeaderSize bytes
// have been consumed. On failure the position of r is unspecified.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, errors.Wrap(dashcam.ErrTruncated, "read box header")
		}
		return Header{}, errors.Wrapf(dashcam.ErrIO, "read box header: %v", err)
	}

	h := Header{Length: uint64(binary.BigEndian.Uint32(buf[:4]))}
	if h.Length < HeaderSize {
		return Header{}, errors.Wrapf(dashcam.ErrMalformed, "box length %d is less than %d", h.Length, HeaderSize)
	}
	copy(h.Type[:], buf[4:])
	return h, nil
}
