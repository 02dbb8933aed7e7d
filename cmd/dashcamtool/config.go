package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"ktkr.us/pkg/dashcam/camera"
)

// config is the optional YAML configuration:
//
//	log_level: debug
//	cameras:
//	  722GW: b
//	  322GW: unsupported
type config struct {
	LogLevel string            `yaml:"log_level"`
	Cameras  map[string]string `yaml:"cameras"`
}

func defaultConfig() config {
	return config{LogLevel: "info"}
}

// loadConfig reads the config at path. An empty path gives the defaults.
func loadConfig(path string) (config, error) {
	conf := defaultConfig()
	if path == "" {
		return conf, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := parseConfig(b, &conf); err != nil {
		return conf, errors.WithMessage(err, path)
	}
	return conf, nil
}

func parseConfig(b []byte, conf *config) error {
	if err := yaml.UnmarshalStrict(b, conf); err != nil {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

func (c config) level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(c.LogLevel)
}

// registry returns the built-in camera table extended with c.Cameras.
func (c config) registry() (*camera.Registry, error) {
	extra := make(map[string]camera.Format, len(c.Cameras))
	for name, s := range c.Cameras {
		f, err := camera.ParseFormat(s)
		if err != nil {
			return nil, errors.WithMessagef(err, "camera %s", name)
		}
		extra[name] = f
	}
	return camera.NewRegistry(extra), nil
}
