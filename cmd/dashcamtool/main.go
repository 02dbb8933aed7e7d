// Command dashcamtool inspects dashcam recordings and their telemetry.
//
//	dashcamtool [-config file] [-log level] info <file.mp4>
//	dashcamtool [-config file] [-log level] boxes <file.mp4>
//	dashcamtool [-config file] [-log level] samples -model <name> <telemetry.bin>
//	dashcamtool [-config file] [-log level] copyudta <src.mp4> <dst.mp4>
//
// The telemetry stream is the camera's data track extracted from the
// recording, e.g. with ffmpeg -map 0:2 -c copy -f data.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	amp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"ktkr.us/pkg/fmtutil"

	"ktkr.us/pkg/dashcam"
	"ktkr.us/pkg/dashcam/camera"
	"ktkr.us/pkg/dashcam/mp4"
	"ktkr.us/pkg/dashcam/telemetry"
)

var commands = map[string]func(reg *camera.Registry, args []string) error{
	"info":     info,
	"boxes":    boxes,
	"samples":  samples,
	"copyudta": copyUdta,
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] info|boxes|samples|copyudta ...\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	level := flag.String("log", "", "log level (overrides config)")
	flag.Usage = usage
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *level != "" {
		conf.LogLevel = *level
	}
	lvl, err := conf.level()
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(lvl)

	reg, err := conf.registry()
	if err != nil {
		log.Fatal().Err(err).Msg("bad camera table")
	}

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd(reg, flag.Args()[1:]); err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("failed")
	}
}

func info(reg *camera.Registry, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: info <file.mp4>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	m := mp4.NewFile(f)
	s, err := m.ReadInfoString()
	if err != nil {
		return err
	}
	model := camera.Model(s)
	fmt.Printf("Info:      %q\n", s)
	fmt.Printf("Model:     %s\n", model)
	switch {
	case reg.IsSupported(model):
		fmt.Printf("Telemetry: format %s\n", reg.Lookup(model))
	case reg.Known(model):
		fmt.Println("Telemetry: not supported")
	default:
		fmt.Println("Telemetry: unknown camera")
	}

	secs, err := m.ReadDuration()
	if err != nil {
		log.Warn().Err(err).Msg("no duration")
		return nil
	}
	fmt.Printf("Duration:  %s\n", fmtutil.HMS(mp4.DurationOf(secs)))
	return nil
}

func boxes(reg *camera.Registry, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: boxes <file.mp4>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	list, err := mp4.NewFile(f).Boxes()
	if err != nil {
		return err
	}
	for _, b := range list {
		fmt.Printf("%s%s @%d (%d bytes)\n", strings.Repeat("  ", b.Depth), b.Type, b.Offset, b.Length)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	fmt.Println("--- full tree")
	_, err = amp4.ReadBoxStructure(f, func(h *amp4.ReadHandle) (interface{}, error) {
		fmt.Printf("%s%s @%d (%d bytes)\n", strings.Repeat("  ", len(h.Path)-1),
			h.BoxInfo.Type, h.BoxInfo.Offset, h.BoxInfo.Size)
		if h.BoxInfo.IsSupportedType() {
			return h.Expand()
		}
		return nil, nil
	})
	return err
}

func samples(reg *camera.Registry, args []string) error {
	fs := flag.NewFlagSet("samples", flag.ContinueOnError)
	model := fs.String("model", "", "camera model, e.g. 322GW")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *model == "" || fs.NArg() != 1 {
		return errors.New("usage: samples -model <name> <telemetry.bin>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := telemetry.NewDecoderWithRegistry(f, *model, reg)
	if err != nil {
		return err
	}

	var n, skipped int
	for {
		off := d.Offset()
		s, err := d.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, dashcam.ErrSentenceParse) {
			log.Debug().Err(err).Int64("offset", off).Msg("skip record")
			skipped++
			continue
		}
		if err != nil {
			return err
		}
		n++
		printSample(s)
	}
	log.Info().Int("samples", n).Int("skipped", skipped).Str("format", d.Format().String()).Msg("done")
	return nil
}

func printSample(s dashcam.Sample) {
	t := "-"
	if s.HasTime() {
		t = s.Time.Format("2006-01-02T15:04:05.000Z")
	}
	if !s.HasPosition() {
		fmt.Printf("%s no fix acc=%.3f,%.3f,%.3f\n", t, s.XAcc, s.YAcc, s.ZAcc)
		return
	}
	fmt.Printf("%s %.6f,%.6f alt=%.1f speed=%.2f bearing=%.1f sats=%d acc=%.3f,%.3f,%.3f\n",
		t, s.Latitude, s.Longitude, s.Altitude, s.Speed, s.Bearing, s.Satellites,
		s.XAcc, s.YAcc, s.ZAcc)
}

func copyUdta(reg *camera.Registry, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: copyudta <src.mp4> <dst.mp4>")
	}

	src, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := mp4.NewFile(src).ReadUdta()
	if err != nil {
		return errors.WithMessage(err, args[0])
	}

	dst, err := os.OpenFile(args[1], os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := mp4.NewFile(dst).AppendUdta(data); err != nil {
		dst.Close()
		return errors.WithMessage(err, args[1])
	}
	log.Info().Int("bytes", len(data)).Str("from", args[0]).Str("to", args[1]).Msg("copied udta")
	return dst.Close()
}
