package mmap

import "os"

// Fdatasync flushes the file's data to stable storage, skipping metadata
// where the platform allows it.
//
// Errors are not recoverable: many file systems mark dirty pages clean after
// a failed sync, so a save that fails here must be treated as lost.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
