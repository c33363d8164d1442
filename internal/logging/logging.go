// Package logging sets up the worker's structured logger: a logrus
// instance writing through an OutputSplitter so error-level records land
// on stderr and everything else lands on stdout, matching how
// containerized log collectors expect the two streams to be used.
//
// Adapted from the teacher's common/logging.go and common/logger.go.
package logging

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// OutputSplitter routes already-formatted log lines to stderr when they
// carry logrus's error or fatal level marker ("level=error"/"level=fatal"
// from the text formatter, "level":"error"/"level":"fatal" from the JSON
// formatter), and to stdout otherwise.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Config selects the logger's verbosity and encoding. It doubles as the
// schema for the YAML file LEGA_LOG/--log points at, mirroring the
// original's logging.yml passed to logging.config.dictConfig.
type Config struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"; default "info"
	JSON  bool   `yaml:"json"`
}

// LoadYAMLConfig reads a logging Config from a YAML file. A path that
// isn't a YAML config (missing, or just a bare level name like "debug")
// falls back to Config{Level: path}, so --log still accepts a plain level
// for convenience.
func LoadYAMLConfig(path string) (Config, error) {
	if path == "" {
		return Config{Level: "info"}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{Level: path}, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing logging config %s: %w", path, err)
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	return cfg, nil
}

// Setup configures logrus's standard logger in place and returns it,
// matching how the rest of the codebase calls logrus.Info/WithError/etc.
// directly rather than threading a logger value around.
func Setup(cfg Config) *logrus.Logger {
	logger := logrus.StandardLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetOutput(OutputSplitter{})

	return logger
}
