// Package vault defines the Storage capability the ingestion worker
// depends on to archive payload bytes after the Crypt4GH header has been
// split off, plus two drivers: a local filesystem store and an S3 object
// store. The worker only ever sees the two-method Storage interface; the
// concrete driver is chosen by the vault.driver config key.
package vault

import "io"

// Storage is the minimal capability the ingestion worker requires from a
// vault backend.
type Storage interface {
	// Location returns the opaque destination handle for fileID (a path
	// for the filesystem driver, a bucket/key pair encoded as a string
	// for the S3 driver).
	Location(fileID int64) (string, error)
	// Copy streams r to target until EOF and returns the number of bytes
	// written.
	Copy(r io.Reader, target string) (int64, error)
}

// Config carries the driver-specific settings New uses to build a
// Storage; the driver itself is picked by New from the raw value of the
// vault.driver config key.
type Config struct {
	FileStorageRoot string

	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3PathPrefix string
}

// New selects a driver by name ("FileStorage" or "S3Storage", matching the
// class names the original configuration names directly) and constructs
// it from cfg.
func New(driver string, cfg Config) (Storage, error) {
	switch driver {
	case "", "FileStorage":
		return NewFileStorage(cfg.FileStorageRoot), nil
	case "S3Storage":
		return NewS3Storage(cfg)
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

// UnknownDriverError reports a vault.driver value with no matching
// implementation.
type UnknownDriverError struct {
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return "unknown vault driver: " + e.Driver
}
