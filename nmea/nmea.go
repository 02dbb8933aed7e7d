// Package nmea parses the two NMEA 0183 sentences dashcams embed in their
// telemetry records, GPRMC and GPGGA.
//
// Checksums are stripped and never verified. The cameras write checksums
// that do not match, so field contents are trusted as is.
package nmea

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/dashcam"
)

const (
	tagRMC = "$GPRMC"
	tagGGA = "$GPGGA"

	knotsToMetersPerSecond = 0.514444
)

// ddmm.mmmm or dddmm.mmmm
var coordRe = regexp.MustCompile(`^(\d{0,3})(\d\d(?:\.\d*)?)$`)

// split strips the checksum from line and splits it into fields. The first
// field must be tag and the field count must be one of counts.
func split(line, tag string, counts ...int) ([]string, error) {
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	f := strings.Split(line, ",")
	if f[0] != tag {
		return nil, errors.Wrapf(dashcam.ErrSentenceParse, "expected %s, got %q", tag, f[0])
	}
	for _, n := range counts {
		if len(f) == n {
			return f, nil
		}
	}
	return nil, errors.Wrapf(dashcam.ErrSentenceParse, "%s: %d fields", tag, len(f))
}

// ParseRMC parses a GPRMC sentence into s. A sentence without a time, date
// or status is accepted but leaves s untouched. Position, speed and bearing
// are only set when the fix is valid. On error s is not modified.
//
// Both the NMEA 2.3 form (with a mode indicator) and the older form without
// it are accepted.
func ParseRMC(line string, s *dashcam.Sample) error {
	// NMEA 2.3 added the mode field; sentences from older receivers end
	// after the magnetic variation.
	f, err := split(line, tagRMC, 12, 13)
	if err != nil {
		return err
	}

	// 0 tag, 1 time, 2 status, 3 lat, 4 N/S, 5 lon, 6 E/W, 7 speed (knots),
	// 8 course, 9 date, 10 variation, 11 E/W, [12 mode]
	if f[1] == "" || f[2] == "" || f[9] == "" {
		return nil
	}

	t, err := parseDateTime(f[9], f[1])
	if err != nil {
		return err
	}

	out := *s
	out.Time = t
	out.Valid = f[2] == "A"
	if out.Valid {
		if out.Latitude, err = parseHemisphere(f[3], f[4], "N"); err != nil {
			return errors.WithMessage(err, "latitude")
		}
		if out.Longitude, err = parseHemisphere(f[5], f[6], "E"); err != nil {
			return errors.WithMessage(err, "longitude")
		}
		if out.Speed, err = parseOptional(f[7]); err != nil {
			return errors.WithMessage(err, "speed")
		}
		out.Speed *= knotsToMetersPerSecond
		if out.Bearing, err = parseOptional(f[8]); err != nil {
			return errors.WithMessage(err, "bearing")
		}
	}
	*s = out
	return nil
}

// ParseGGA parses a GPGGA sentence into s. Satellites, HDOP, altitude and
// geoid height are only set when the fix quality is above zero. On error s
// is not modified.
func ParseGGA(line string, s *dashcam.Sample) error {
	f, err := split(line, tagGGA, 15)
	if err != nil {
		return err
	}

	// 0 tag, 1 time, 2 lat, 3 N/S, 4 lon, 5 E/W, 6 quality, 7 satellites,
	// 8 hdop, 9 altitude, 10 M, 11 geoid height, 12 M, 13 age, 14 station
	if f[1] == "" {
		return nil
	}

	fix, err := parseOptionalInt(f[6])
	if err != nil {
		return errors.WithMessage(err, "fix quality")
	}
	if fix <= 0 {
		return nil
	}

	out := *s
	if out.Satellites, err = parseOptionalInt(f[7]); err != nil {
		return errors.WithMessage(err, "satellites")
	}
	if out.HDOP, err = parseOptional(f[8]); err != nil {
		return errors.WithMessage(err, "hdop")
	}
	if out.Altitude, err = parseOptional(f[9]); err != nil {
		return errors.WithMessage(err, "altitude")
	}
	if out.GeoidHeight, err = parseOptional(f[11]); err != nil {
		return errors.WithMessage(err, "geoid height")
	}
	*s = out
	return nil
}

// ParseCoord converts a [ddd]mm.mmmm field to decimal degrees.
func ParseCoord(field string) (float64, error) {
	m := coordRe.FindStringSubmatch(field)
	if m == nil {
		return 0, errors.Wrapf(dashcam.ErrSentenceParse, "bad coordinate %q", field)
	}

	var deg int
	if m[1] != "" {
		var err error
		if deg, err = strconv.Atoi(m[1]); err != nil {
			return 0, errors.Wrapf(dashcam.ErrSentenceParse, "bad coordinate %q: %v", field, err)
		}
	}
	minutes, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, errors.Wrapf(dashcam.ErrSentenceParse, "bad coordinate %q: %v", field, err)
	}
	return float64(deg) + minutes/60, nil
}

func parseHemisphere(field, hemi, positive string) (float64, error) {
	v, err := ParseCoord(field)
	if err != nil {
		return 0, err
	}
	if hemi != positive {
		v = -v
	}
	return v, nil
}

// parseDateTime parses ddmmyy and hhmmss[.sss] as UTC. Two digit years
// from 69 on are in the 1900s.
func parseDateTime(date, tod string) (time.Time, error) {
	t, err := time.ParseInLocation("020106 150405", date+" "+tod, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(dashcam.ErrSentenceParse, "bad date/time %q %q: %v", date, tod, err)
	}
	return t, nil
}

// parseOptional parses a float field. Empty fields are NaN.
func parseOptional(field string) (float64, error) {
	if field == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, errors.Wrapf(dashcam.ErrSentenceParse, "bad number %q", field)
	}
	return v, nil
}

// parseOptionalInt parses an integer field. Empty fields are zero.
func parseOptionalInt(field string) (int, error) {
	if field == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, errors.Wrapf(dashcam.ErrSentenceParse, "bad integer %q", field)
	}
	return v, nil
}
