package corpus

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/stephanus/core/cas"
	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/internal/archive"
	"github.com/FocuswithJustin/stephanus/internal/logging"
	"github.com/FocuswithJustin/stephanus/internal/validation"
)

// Restore writes back the originals that an in-place run saved to the
// backup store at backupDir. input is the directory or file the run
// rewrote. An empty run restores the latest original of every document.
func Restore(ctx context.Context, input, backupDir, run string) ([]cas.Record, error) {
	kind, err := validation.DetectInput(input)
	switch {
	case os.IsNotExist(err):
		return nil, errors.NewNotFound("input", input)
	case err != nil:
		return nil, err
	case archive.IsArchive(input):
		return nil, errors.NewValidation("input", "an archive is never rewritten in place")
	}
	b, err := cas.NewBackup(backupDir, "")
	if err != nil {
		return nil, err
	}
	records, err := b.Originals(run)
	if err != nil {
		return nil, err
	}

	if kind != validation.FileTypeDir {
		name := filepath.Base(input)
		for _, rec := range records {
			if rec.Name == name {
				return []cas.Record{rec}, restoreOne(ctx, b, rec, input)
			}
		}
		return nil, errors.NewNotFound("backup", name)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return records[:i], err
		}
		path, err := validation.SanitizePath(input, rec.Name)
		if err != nil {
			return records[:i], err
		}
		if err := restoreOne(ctx, b, rec, path); err != nil {
			return records[:i], err
		}
	}
	logging.InfoContext(ctx, "restore complete", "input", input, "documents", len(records), "run", run)
	return records, nil
}

func restoreOne(ctx context.Context, b *cas.Backup, rec cas.Record, path string) error {
	data, err := b.Store().Get(rec.Digest)
	if err != nil {
		return err
	}
	digest, err := cas.DigestReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if digest != rec.Digest {
		return errors.NewIO("verify", rec.Name, fmt.Errorf("backup blob digest %s, want %s", digest, rec.Digest))
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	logging.Document(ctx, path, "restore", "digest", rec.Digest, "run", rec.Run)
	return nil
}
