package archive

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/newthinker/tadash/internal/core"
)

const exportsRoot = "exports"

// Archiver files export snapshots by symbol, window and generation time
type Archiver struct {
	storage Storage
	now     func() time.Time
}

// NewArchiver creates an archiver over storage
func NewArchiver(storage Storage) *Archiver {
	return &Archiver{storage: storage, now: time.Now}
}

// ExportPath returns exports/<SYMBOL>/<period>_<interval>/<UTC timestamp>.csv
func ExportPath(q core.Query, at time.Time) string {
	return path.Join(exportsRoot, q.Symbol,
		fmt.Sprintf("%s_%s", q.Period, q.Interval),
		at.UTC().Format("20060102T150405Z")+".csv")
}

// Save writes one export snapshot and returns its path
func (a *Archiver) Save(ctx context.Context, q core.Query, data []byte) (string, error) {
	p := ExportPath(q, a.now())
	if err := a.storage.Write(ctx, p, data); err != nil {
		return "", core.WrapError(core.ErrExportFailed, err)
	}
	return p, nil
}

// History lists archived exports for a symbol, oldest first
func (a *Archiver) History(ctx context.Context, symbol string) ([]string, error) {
	return a.storage.List(ctx, path.Join(exportsRoot, symbol))
}
