// Package dashcam implements routines for reading metadata and GPS telemetry
// out of dashcam video files.
//
// The mp4 subpackage locates, extracts and appends metadata boxes in an MP4
// container. The telemetry subpackage decodes the per-frame GPS and
// accelerometer records recorded by supported camera models, using the nmea
// subpackage for the embedded sentences and the camera subpackage to pick a
// record layout.
package dashcam

import (
	"errors"
	"math"
	"time"
)

// Error kinds. Errors returned by the subpackages wrap one of these, so
// callers can test them with errors.Is.
var (
	ErrTruncated         = errors.New("dashcam: truncated data")
	ErrMalformed         = errors.New("dashcam: malformed data")
	ErrNotFound          = errors.New("dashcam: box not found")
	ErrUnsupportedFormat = errors.New("dashcam: unsupported format")
	ErrSentenceParse     = errors.New("dashcam: bad NMEA sentence")
	ErrPrecondition      = errors.New("dashcam: file not in expected format")
	ErrIO                = errors.New("dashcam: I/O error")
)

// Sample is a single GPS sample. Float fields that were not present in the
// source are NaN; zero is a legitimate value for most of them.
type Sample struct {
	Time  time.Time // UTC; zero if the receiver had no timestamp
	Valid bool      // fix status was "A"

	Latitude  float64 // degrees, + N / - S
	Longitude float64 // degrees, + E / - W
	Speed     float64 // meters per second
	Bearing   float64 // degrees from true north

	XAcc float64
	YAcc float64
	ZAcc float64

	Satellites  int
	HDOP        float64
	Altitude    float64
	GeoidHeight float64
}

// NewSample returns a sample with every measurement unset.
func NewSample() Sample {
	var s Sample
	s.Reset()
	return s
}

// Reset clears s back to the unset state.
func (s *Sample) Reset() {
	nan := math.NaN()
	*s = Sample{
		Latitude:    nan,
		Longitude:   nan,
		Speed:       nan,
		Bearing:     nan,
		XAcc:        nan,
		YAcc:        nan,
		ZAcc:        nan,
		HDOP:        nan,
		Altitude:    nan,
		GeoidHeight: nan,
	}
}

// HasTime reports whether the sample carries a receiver timestamp.
func (s *Sample) HasTime() bool { return !s.Time.IsZero() }

// HasPosition reports whether s carries a usable position fix.
func (s *Sample) HasPosition() bool {
	return s.Valid && !math.IsNaN(s.Latitude) && !math.IsNaN(s.Longitude)
}
