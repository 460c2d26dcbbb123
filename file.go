package csav

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andreyvit/csav/mmap"
)

const BackupSuffix = ".old"

func BackupPath(path string) string {
	return path + BackupSuffix
}

// Open maps and decodes the save file at path. A failed Open leaves nothing
// behind.
func Open(path string, o Options) (*File, error) {
	o.fill()
	m, err := mmap.Open(path, o.MaxFileSize, mmap.SequentialAccess)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	f, err := Decode(m.Data, o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save encodes f and atomically replaces the file at path. Encoding happens
// fully in memory first, so a failure leaves the existing file untouched.
// Unless o.SkipBackup is set, an existing file is first copied to
// BackupPath(path) if no backup exists yet.
//
// On success the tree's dirty flags are cleared.
func Save(path string, f *File, o Options) error {
	o.fill()
	data, err := Encode(f, o)
	if err != nil {
		return err
	}

	if !o.SkipBackup {
		made, err := backup(path)
		if err != nil {
			return fmt.Errorf("csav: backup: %w", err)
		}
		if made {
			o.Logger.LogAttrs(o.Context, slog.LevelInfo, "csav: backup created", slog.String("path", BackupPath(path)))
		}
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("csav: %w", err)
	}
	f.Tree.ClearDirty()
	return nil
}

// backup copies path to its backup path unless the backup exists or path
// does not.
func backup(path string) (bool, error) {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer src.Close()

	bpath := BackupPath(path)
	dst, err := os.OpenFile(bpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	_, err = io.Copy(dst, src)
	if err == nil {
		err = mmap.Fdatasync(dst)
	}
	if e := dst.Close(); err == nil {
		err = e
	}
	if err != nil {
		_ = os.Remove(bpath)
		return false, err
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = mmap.Fdatasync(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if fi, statErr := os.Stat(path); statErr == nil {
		_ = os.Chmod(tmp.Name(), fi.Mode().Perm())
	} else {
		_ = os.Chmod(tmp.Name(), 0o644)
	}
	return os.Rename(tmp.Name(), path)
}
