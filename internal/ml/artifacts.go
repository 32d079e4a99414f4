// Package ml wraps the trained classifier artifacts behind small interfaces
// and turns probability vectors into ranked predictions.
//
// The three artifacts (scaler, model, label encoder) are loaded once at
// startup into an Artifacts value which is never mutated afterwards and can
// be shared by concurrent requests without locking.
package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"physio-predictor/internal/common"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Source provides raw artifact documents by name.
type Source interface {
	// ReadArtifact returns the document and its format ("json" or "yaml").
	ReadArtifact(name string) (data []byte, format string, err error)
	Location() string
}

// DirSource reads <name>.json, <name>.yaml or <name>.yml from a directory.
type DirSource struct {
	Dir string
}

func (d DirSource) Location() string { return d.Dir }

func (d DirSource) ReadArtifact(name string) ([]byte, string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(d.Dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return data, FormatFromExt(ext), nil
	}
	return nil, "", fmt.Errorf("no %s.json/.yaml in %s: %w", name, d.Dir, os.ErrNotExist)
}

// FormatFromExt maps a file extension to an artifact format.
func FormatFromExt(ext string) string {
	switch ext {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func decodeArtifact(data []byte, format string, v any) error {
	if format == "yaml" {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// LoadOptions selects the model backend.
type LoadOptions struct {
	Backend       string // common.BackendSoftmax or common.BackendRemote
	RemoteURL     string
	RemoteTimeout time.Duration
}

// Info describes the loaded artifacts.
type Info struct {
	Source   string    `json:"source"`
	Backend  string    `json:"backend"`
	Classes  []string  `json:"classes"`
	Features int       `json:"features"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Artifacts is the immutable inference context handed to every request.
type Artifacts struct {
	scaler Scaler
	model  Model
	labels LabelDecoder
	info   Info
}

// NewArtifacts assembles artifacts from already constructed components.
func NewArtifacts(scaler Scaler, model Model, labels LabelDecoder) (*Artifacts, error) {
	if scaler == nil || model == nil || labels == nil {
		return nil, errors.New("scaler, model and labels are all required")
	}
	if model.Classes() != labels.Len() {
		return nil, fmt.Errorf("model predicts %d classes but label encoder has %d", model.Classes(), labels.Len())
	}

	classes := make([]string, labels.Len())
	for i := range classes {
		c, err := labels.Decode(i)
		if err != nil {
			return nil, err
		}
		classes[i] = c
	}

	return &Artifacts{
		scaler: scaler,
		model:  model,
		labels: labels,
		info: Info{
			Classes:  classes,
			Features: common.FeatureCount,
			LoadedAt: time.Now(),
		},
	}, nil
}

// Load reads and validates all three artifacts. Any failure is returned as
// *ArtifactLoadError.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Artifacts, error) {
	backend := opts.Backend
	if backend == "" {
		backend = common.BackendSoftmax
	}

	scaler := &StandardScaler{}
	if err := readArtifact(src, common.ScalerArtifact, scaler); err != nil {
		return nil, err
	}
	if err := scaler.validate(common.FeatureCount); err != nil {
		return nil, &ArtifactLoadError{Artifact: common.ScalerArtifact, Location: src.Location(), Err: err}
	}

	labels := &LabelEncoder{}
	if err := readArtifact(src, common.LabelsArtifact, labels); err != nil {
		return nil, err
	}
	if err := labels.validate(); err != nil {
		return nil, &ArtifactLoadError{Artifact: common.LabelsArtifact, Location: src.Location(), Err: err}
	}

	var model Model
	switch backend {
	case common.BackendSoftmax:
		sm := &SoftmaxModel{}
		if err := readArtifact(src, common.ModelArtifact, sm); err != nil {
			return nil, err
		}
		if err := sm.validate(common.FeatureCount); err != nil {
			return nil, &ArtifactLoadError{Artifact: common.ModelArtifact, Location: src.Location(), Err: err}
		}
		model = sm
	case common.BackendRemote:
		rm, err := NewRemoteModel(ctx, opts.RemoteURL, opts.RemoteTimeout)
		if err != nil {
			return nil, &ArtifactLoadError{Artifact: common.ModelArtifact, Location: opts.RemoteURL, Err: err}
		}
		model = rm
	default:
		return nil, &ArtifactLoadError{
			Artifact: common.ModelArtifact,
			Location: src.Location(),
			Err:      fmt.Errorf("unknown model backend %q", backend),
		}
	}

	a, err := NewArtifacts(scaler, model, labels)
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: common.LabelsArtifact, Location: src.Location(), Err: err}
	}
	a.info.Source = src.Location()
	a.info.Backend = backend

	log.Info().
		Str("source", a.info.Source).
		Str("backend", backend).
		Int("classes", len(a.info.Classes)).
		Int("features", a.info.Features).
		Msg("model artifacts loaded")

	return a, nil
}

func readArtifact(src Source, name string, v any) error {
	data, format, err := src.ReadArtifact(name)
	if err != nil {
		return &ArtifactLoadError{Artifact: name, Location: src.Location(), Err: err}
	}
	if err := decodeArtifact(data, format, v); err != nil {
		return &ArtifactLoadError{Artifact: name, Location: src.Location(), Err: fmt.Errorf("decode %s: %w", format, err)}
	}
	return nil
}

// Info returns a copy of the artifact description.
func (a *Artifacts) Info() Info {
	info := a.info
	info.Classes = append([]string(nil), a.info.Classes...)
	return info
}

func (a *Artifacts) Labels() LabelDecoder { return a.labels }

// Scale runs the scaler over feature rows.
func (a *Artifacts) Scale(x [][]float64) ([][]float64, error) {
	return a.scaler.Transform(x)
}

// PredictProba runs the model and checks every probability row has one value
// in [0, 1] per known class. Probabilities are not renormalized.
func (a *Artifacts) PredictProba(ctx context.Context, x [][]float64) ([][]float64, error) {
	probs, err := a.model.PredictProba(ctx, x)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(x) {
		return nil, fmt.Errorf("model returned %d probability rows for %d inputs", len(probs), len(x))
	}
	classes := a.labels.Len()
	for i, row := range probs {
		if len(row) != classes {
			return nil, fmt.Errorf("probability row %d has %d entries, expected %d", i, len(row), classes)
		}
		for c, p := range row {
			if math.IsNaN(p) || p < -1e-9 || p > 1+1e-9 {
				return nil, fmt.Errorf("invalid probability %f for class %d in row %d", p, c, i)
			}
		}
	}
	return probs, nil
}
