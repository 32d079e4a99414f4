package storage

import (
	"fmt"
	"io"

	"physio-predictor/internal/common"
	"physio-predictor/internal/ml"

	"github.com/rs/zerolog/log"
)

// DefaultArtifacts are the documents a complete bundle holds.
var DefaultArtifacts = []string{common.ScalerArtifact, common.ModelArtifact, common.LabelsArtifact}

// Pack copies the named artifacts from src into b, keeping their format.
// With no names, DefaultArtifacts are packed.
func Pack(b *Bundle, src ml.Source, names ...string) error {
	if len(names) == 0 {
		names = DefaultArtifacts
	}
	for _, name := range names {
		data, format, err := src.ReadArtifact(name)
		if err != nil {
			return fmt.Errorf("read %s from %s: %w", name, src.Location(), err)
		}
		if err := b.Put(name, format, data); err != nil {
			return err
		}
		log.Debug().Str("artifact", name).Str("format", format).Int("bytes", len(data)).Msg("artifact packed")
	}
	return nil
}

// OpenSource returns the bundle at bundlePath when set, otherwise the
// directory source. The closer releases the bundle file.
func OpenSource(dir, bundlePath string) (ml.Source, io.Closer, error) {
	if bundlePath == "" {
		return ml.DirSource{Dir: dir}, nopCloser{}, nil
	}
	b, err := Open(bundlePath)
	if err != nil {
		return nil, nil, &ml.ArtifactLoadError{Artifact: "bundle", Location: bundlePath, Err: err}
	}
	return b, b, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
