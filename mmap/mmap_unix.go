//go:build unix

package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, hint Hint) ([]byte, error) {
	flags := syscall.MAP_SHARED
	if hint.Has(Prefault) {
		flags |= mapPopulate
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ, flags)
	if err != nil {
		return nil, err
	}

	if hint.Has(SequentialAccess) {
		err = unix.Madvise(b, syscall.MADV_SEQUENTIAL)
		if err != nil && err != syscall.ENOSYS {
			// Ignore not implemented error in kernel because it still works.
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("madvise(MADV_SEQUENTIAL): %w", err)
		}
	}
	return b, nil
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}
