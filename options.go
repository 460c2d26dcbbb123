package csav

import (
	"context"
	"log/slog"

	"github.com/andreyvit/csav/progress"
)

type Options struct {
	Context context.Context
	Logger  *slog.Logger
	Verbose bool

	// Progress receives monotonically increasing progress of Open/Save and
	// of Decode/Encode. May be nil.
	Progress *progress.Progress

	// MaxFileSize caps the size of files Open is willing to map. Zero means
	// DefaultMaxFileSize.
	MaxFileSize int64

	// SkipBackup disables the X.old backup made by Save.
	SkipBackup bool
}

const DefaultMaxFileSize = 1 << 30

func (o *Options) fill() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
}
