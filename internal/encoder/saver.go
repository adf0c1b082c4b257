package encoder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/pkg/util"
)

// Saver delivers a finished artifact under name.
type Saver interface {
	Save(ctx context.Context, name string, a Artifact) (string, error)
}

// DirSaver writes artifacts into a directory.
type DirSaver struct {
	logger zerolog.Logger
	dir    string
}

// NewDirSaver creates a saver writing into dir.
func NewDirSaver(logger zerolog.Logger, dir string) *DirSaver {
	return &DirSaver{
		logger: logger.With().Str("component", "saver").Logger(),
		dir:    dir,
	}
}

// Save writes a atomically to dir/name. An existing file is never replaced.
func (s *DirSaver) Save(ctx context.Context, name string, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if len(a.Data) == 0 {
		return "", fmt.Errorf("refusing to save empty artifact %s", name)
	}

	path := filepath.Join(s.dir, name)
	if util.FileExists(path) {
		return "", fmt.Errorf("artifact %s already exists", path)
	}
	if err := util.WriteFileAtomic(path, a.Data); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.logger.Info().
		Str("path", abs).
		Int("bytes", len(a.Data)).
		Int("frames", a.Frames).
		Msg("artifact saved")
	return abs, nil
}

// Dir returns the output directory.
func (s *DirSaver) Dir() string {
	return s.dir
}

var _ Saver = (*DirSaver)(nil)
