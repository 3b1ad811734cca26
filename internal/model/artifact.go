package model

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Backend names used in the manifest.
const (
	BackendDense = "dense"
	BackendONNX  = "onnx"
)

var (
	// ErrModelLoad wraps every failure to turn a file into a usable model.
	ErrModelLoad = errors.New("model could not be loaded")
	// ErrModelMissing means the artifact path does not exist.
	ErrModelMissing = errors.New("model file is missing")
	// ErrModelEmpty means the artifact exists but has zero length.
	ErrModelEmpty = errors.New("model file is empty")
	// ErrNotReady is returned by Infer on an artifact that failed to load.
	ErrNotReady = errors.New("model is not ready")
	// ErrInputWidth is returned when a feature vector does not match the
	// model's input width.
	ErrInputWidth = errors.New("feature vector width does not match model input")
)

// maxEntrySize bounds how much of a single container entry is read.
const maxEntrySize = 512 << 20

// Model is a loaded, immutable predictive model.
type Model interface {
	InputWidth() int
	Infer(input []float64) ([]float64, error)
	Close() error
}

// Options configures backend construction.
type Options struct {
	ONNXRuntimeLib string
	IntraOpThreads int
	Logger         *zap.Logger
}

type backendFunc func(payload []byte, opts Options) (Model, error)

var backends = map[string]backendFunc{
	BackendDense: newDenseModel,
	BackendONNX:  newONNXModel,
}

// Artifact is a model artifact in one of two states: ready, holding a
// model, or unavailable, holding the reason. An artifact never changes state.
type Artifact struct {
	path     string
	manifest Manifest
	model    Model
	err      error
}

// Unavailable returns an artifact that reports err and refuses inference.
func Unavailable(path string, err error) *Artifact {
	if err == nil {
		err = ErrNotReady
	}
	return &Artifact{path: path, err: err}
}

// Load reads the zipped container at path. On failure it returns a nil
// artifact and an error wrapping ErrModelLoad.
func Load(path string, opts Options) (*Artifact, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %w: %s", ErrModelLoad, ErrModelMissing, path)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrModelLoad, path)
	case info.Size() == 0:
		return nil, fmt.Errorf("%w: %w: %s", ErrModelLoad, ErrModelEmpty, path)
	}

	manifest, m, err := openContainer(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}

	logger.Info("model successfully loaded",
		zap.String("path", path),
		zap.String("name", manifest.Name),
		zap.String("backend", manifest.Backend),
		zap.Int("input_width", manifest.InputWidth),
	)
	return &Artifact{path: path, manifest: manifest, model: m}, nil
}

func openContainer(path string, opts Options) (Manifest, Model, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("container: %w", err)
	}
	defer zr.Close()

	raw, err := readEntry(&zr.Reader, ManifestName)
	if err != nil {
		return Manifest{}, nil, err
	}
	manifest, err := parseManifest(raw)
	if err != nil {
		return Manifest{}, nil, err
	}

	payload, err := readEntry(&zr.Reader, manifest.payloadName())
	if err != nil {
		return Manifest{}, nil, err
	}

	m, err := backends[manifest.Backend](payload, opts)
	if err != nil {
		return Manifest{}, nil, err
	}
	if m.InputWidth() != manifest.InputWidth {
		m.Close()
		return Manifest{}, nil, fmt.Errorf("manifest declares input width %d but model expects %d",
			manifest.InputWidth, m.InputWidth())
	}
	return manifest, m, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("container: %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("container: %s: %w", name, err)
	}
	return data, nil
}

// Ready reports whether the artifact holds a loaded model.
func (a *Artifact) Ready() bool {
	return a != nil && a.model != nil
}

// Err returns the load failure of an unavailable artifact.
func (a *Artifact) Err() error {
	if a == nil {
		return ErrNotReady
	}
	return a.err
}

// Path returns the file the artifact was (or would have been) loaded from.
func (a *Artifact) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Source returns the artifact's file name, for user-facing messages.
func (a *Artifact) Source() string {
	if a == nil || a.path == "" {
		return ""
	}
	return filepath.Base(a.path)
}

// Manifest returns the manifest of a ready artifact, or the zero value.
func (a *Artifact) Manifest() Manifest {
	if a == nil {
		return Manifest{}
	}
	return a.manifest
}

// Labels returns the output labels declared in the manifest, if any.
func (a *Artifact) Labels() []string {
	if a == nil {
		return nil
	}
	return a.manifest.Outputs
}

// Infer runs the model on input. It never panics on an unavailable artifact.
func (a *Artifact) Infer(input []float64) ([]float64, error) {
	if !a.Ready() {
		return nil, ErrNotReady
	}
	if len(input) != a.manifest.InputWidth {
		return nil, fmt.Errorf("%w: got %d features, model expects %d",
			ErrInputWidth, len(input), a.manifest.InputWidth)
	}
	return a.model.Infer(input)
}

// Close releases backend resources.
func (a *Artifact) Close() error {
	if !a.Ready() {
		return nil
	}
	return a.model.Close()
}
