// Package blob re-exports the blob storage abstraction and opens the
// configured backend.
package blob

import (
	"context"
	"fmt"
	"os"

	"foodpantry/internal/blob/core"
	"foodpantry/internal/infra/blob/fs"
	"foodpantry/internal/infra/blob/memory"
	infraS3 "foodpantry/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)

// Open selects a Store implementation using environment variables.
//
//	PANTRY_BLOB_DRIVER: fs|s3|memory (default fs)
//	PANTRY_BLOB_FS_ROOT: directory root when driver=fs (default ./datasets)
//	PANTRY_BLOB_BASE_URL: public URL the fs driver reports for keys
//	(S3 specific variables are documented in internal/infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("PANTRY_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("PANTRY_BLOB_FS_ROOT"), os.Getenv("PANTRY_BLOB_BASE_URL"))
	case DriverS3:
		s, err := infraS3.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem returns a directory-backed Store. baseURL may be empty.
func NewFilesystem(root, baseURL string) (Store, error) {
	s, err := fs.New(root, fs.WithBaseURL(baseURL))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memory.New() }

// NewS3 constructs an S3-backed Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Root reports the local directory behind s, if any. Only the filesystem
// driver has one.
func Root(s Store) (string, bool) {
	r, ok := s.(interface{ Root() string })
	if !ok {
		return "", false
	}
	return r.Root(), true
}
