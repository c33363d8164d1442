// Package secrets resolves sensitive configuration values that may be
// supplied directly, via an environment variable, a plain file, or a
// one-shot secret file that is deleted once read.
//
// Grounded on the scheme dispatch in the original LocalEGA
// conf.convert_sensitive: value://, env://, file://, secret://, else the
// literal string.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	schemeValue  = "value://"
	schemeEnv    = "env://"
	schemeFile   = "file://"
	schemeSecret = "secret://"
)

// Resolve dispatches raw on its scheme prefix and returns the resolved
// value as a string. An empty raw is treated as "not supplied" and
// returned unchanged with a nil error, matching CONF.getsensitive's
// fallback=None behavior at the config-store layer.
func Resolve(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	switch {
	case strings.HasPrefix(raw, schemeValue):
		return strings.TrimPrefix(raw, schemeValue), nil

	case strings.HasPrefix(raw, schemeEnv):
		name := strings.TrimPrefix(raw, schemeEnv)
		logrus.Warn("loading sensitive data from an environment variable is deprecated, use secret:// instead")
		val, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s not found", name)
		}
		return val, nil

	case strings.HasPrefix(raw, schemeFile):
		path := strings.TrimPrefix(raw, schemeFile)
		if err := warnIfWorldReadable(path); err != nil {
			logrus.WithError(err).Warn("could not stat sensitive file for permission check")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		return string(data), nil

	case strings.HasPrefix(raw, schemeSecret):
		path := strings.TrimPrefix(raw, schemeSecret)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		if rmErr := os.Remove(path); rmErr != nil {
			logrus.WithError(rmErr).Warnf("could not remove secret file %s", path)
		}
		return string(data), nil

	default:
		return raw, nil
	}
}

// warnIfWorldReadable emits a deprecation warning when a file:// source is
// readable by group or world, matching the original's stat.S_IRGRP/IROTH
// check.
func warnIfWorldReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		logrus.Warnf("sensitive file %s is group or world readable, use secret:// instead", path)
	}
	return nil
}

// Mask renders a resolved sensitive value safe to put in a log line:
// short values collapse to "***", longer ones keep their first and last
// four characters. An empty value reports as "<not set>".
func Mask(value string) string {
	if value == "" {
		return "<not set>"
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
