package mmap

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}
