package model

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// sumNetwork maps [a, b, c] to [a+b+c, a-c].
func sumNetwork() *DenseNetwork {
	return &DenseNetwork{Layers: []DenseLayer{{
		Weights: [][]float64{
			{1, 1, 1},
			{1, 0, -1},
		},
	}}}
}

func writeDense(t *testing.T, m Manifest, n *DenseNetwork) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weather-model.zip")
	if err := SaveDense(path, m, n); err != nil {
		t.Fatalf("SaveDense failed: %v", err)
	}
	return path
}

func writeRaw(t *testing.T, m Manifest, payload string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteContainer(&buf, m, []byte(payload)); err != nil {
		t.Fatalf("WriteContainer failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "weather-model.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDenseArtifact(t *testing.T) {
	path := writeDense(t, Manifest{Name: "sum", Outputs: []string{"total", "spread"}}, sumNetwork())

	a, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if !a.Ready() {
		t.Fatal("expected artifact to be ready")
	}
	if a.Err() != nil {
		t.Fatalf("expected no error on a ready artifact, got %v", a.Err())
	}
	if a.Source() != "weather-model.zip" {
		t.Fatalf("unexpected source %q", a.Source())
	}
	if got := a.Manifest(); got.Backend != BackendDense || got.InputWidth != 3 || got.Name != "sum" {
		t.Fatalf("unexpected manifest %+v", got)
	}
	if !reflect.DeepEqual(a.Labels(), []string{"total", "spread"}) {
		t.Fatalf("unexpected labels %v", a.Labels())
	}

	out, err := a.Infer([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected inference error: %v", err)
	}
	if !reflect.DeepEqual(out, []float64{6, -2}) {
		t.Fatalf("expected [6 -2], got %v", out)
	}
}

func TestLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "nope.zip"), Options{})
	if !errors.Is(err, ErrModelLoad) || !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected missing model error, got %v", err)
	}

	empty := filepath.Join(dir, "empty.zip")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(empty, Options{})
	if !errors.Is(err, ErrModelLoad) || !errors.Is(err, ErrModelEmpty) {
		t.Fatalf("expected empty model error, got %v", err)
	}
	if errors.Is(err, ErrModelMissing) {
		t.Fatal("empty file must not be reported as missing")
	}

	_, err = Load(dir, Options{})
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected load error for a directory, got %v", err)
	}
}

func TestLoadRejectsBadContainers(t *testing.T) {
	valid := Manifest{FormatVersion: 1, Backend: BackendDense, InputWidth: 3}
	network := `{"layers":[{"weights":[[1,1,1]]}]}`

	tests := []struct {
		name     string
		manifest Manifest
		payload  string
		want     string
	}{
		{"future version", Manifest{FormatVersion: 2, Backend: BackendDense, InputWidth: 3}, network, "FormatVersion"},
		{"unknown backend", Manifest{FormatVersion: 1, Backend: "dl4j", InputWidth: 3}, network, "unsupported backend"},
		{"zero width", Manifest{FormatVersion: 1, Backend: BackendDense}, network, "InputWidth"},
		{"payload not json", valid, "not json", "dense"},
		{"no layers", valid, `{"layers":[]}`, "no layers"},
		{"ragged weights", valid, `{"layers":[{"weights":[[1,1,1],[1,1]]}]}`, "columns"},
		{"bias mismatch", valid, `{"layers":[{"weights":[[1,1,1]],"bias":[1,2]}]}`, "bias"},
		{"layers do not chain", valid, `{"layers":[{"weights":[[1,1,1]]},{"weights":[[1,1]]}]}`, "expects 2 inputs"},
		{"unknown activation", valid, `{"layers":[{"weights":[[1,1,1]],"activation":"gelu"}]}`, "activation"},
		{"width disagrees", Manifest{FormatVersion: 1, Backend: BackendDense, InputWidth: 4}, network, "input width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRaw(t, tt.manifest, tt.payload)

			a, err := Load(path, Options{})
			if a != nil {
				t.Fatal("expected no artifact on failure")
			}
			if !errors.Is(err, ErrModelLoad) {
				t.Fatalf("expected ErrModelLoad, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather-model.zip")
	if err := os.WriteFile(path, []byte("this is not a zip archive"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path, Options{})
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if errors.Is(err, ErrModelEmpty) || errors.Is(err, ErrModelMissing) {
		t.Fatalf("corrupt file reported as missing/empty: %v", err)
	}
}

func TestLoadONNXWithoutRuntime(t *testing.T) {
	path := writeRaw(t, Manifest{FormatVersion: 1, Backend: BackendONNX, InputWidth: 3}, "onnx bytes")

	_, err := Load(path, Options{ONNXRuntimeLib: filepath.Join(t.TempDir(), "libonnxruntime.so")})
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if !strings.Contains(err.Error(), "onnx") {
		t.Fatalf("expected onnx error, got %v", err)
	}
}

func TestUnavailableArtifact(t *testing.T) {
	cause := errors.New("boom")
	a := Unavailable("/models/weather-model.zip", cause)

	if a.Ready() {
		t.Fatal("expected unavailable artifact")
	}
	if !errors.Is(a.Err(), cause) {
		t.Fatalf("expected cause to be kept, got %v", a.Err())
	}
	if a.Source() != "weather-model.zip" {
		t.Fatalf("unexpected source %q", a.Source())
	}
	if _, err := a.Infer([]float64{1}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close on unavailable artifact: %v", err)
	}

	var nilArtifact *Artifact
	if nilArtifact.Ready() {
		t.Fatal("nil artifact must not be ready")
	}
	if _, err := nilArtifact.Infer(nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady from nil artifact, got %v", err)
	}
}

func TestInferRejectsWrongWidth(t *testing.T) {
	a, err := Load(writeDense(t, Manifest{}, sumNetwork()), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, in := range [][]float64{{1, 2}, {1, 2, 3, 4}, nil} {
		if _, err := a.Infer(in); !errors.Is(err, ErrInputWidth) {
			t.Fatalf("Infer(%v): expected ErrInputWidth, got %v", in, err)
		}
	}
}

func TestActivations(t *testing.T) {
	one := func(act string) *DenseNetwork {
		return &DenseNetwork{Layers: []DenseLayer{{
			Weights:    [][]float64{{1}, {-1}},
			Bias:       []float64{0, 0},
			Activation: act,
		}}}
	}

	tests := []struct {
		act  string
		in   float64
		want []float64
	}{
		{ActivationIdentity, 2, []float64{2, -2}},
		{"", 2, []float64{2, -2}},
		{ActivationReLU, 2, []float64{2, 0}},
		{ActivationSigmoid, 0, []float64{0.5, 0.5}},
		{ActivationTanh, 0, []float64{0, 0}},
		{ActivationSoftmax, 0, []float64{0.5, 0.5}},
	}

	for _, tt := range tests {
		n := one(tt.act)
		if err := n.Validate(); err != nil {
			t.Fatalf("%s: unexpected validation error: %v", tt.act, err)
		}
		got, err := n.Infer([]float64{tt.in})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.act, err)
		}
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-12 {
				t.Fatalf("%s: got %v, want %v", tt.act, got, tt.want)
			}
		}
	}
}

func TestMultiLayerForward(t *testing.T) {
	n := &DenseNetwork{Layers: []DenseLayer{
		{Weights: [][]float64{{1, -1}, {-1, 1}}, Activation: ActivationReLU},
		{Weights: [][]float64{{2, 3}}, Bias: []float64{1}},
	}}
	if err := n.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	// relu([3-1, 1-3]) = [2, 0]; 2*2 + 3*0 + 1 = 5
	got, err := n.Infer([]float64{3, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{5}) {
		t.Fatalf("expected [5], got %v", got)
	}

	// Inference must not change the network.
	again, _ := n.Infer([]float64{3, 1})
	if !reflect.DeepEqual(got, again) {
		t.Fatalf("repeated inference differs: %v vs %v", got, again)
	}
}
