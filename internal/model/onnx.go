package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxModel runs a graph with a single float32 input of shape [1, width]
// and reads back its first float32 output.
type onnxModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	width      int64
}

func newONNXModel(payload []byte, opts Options) (Model, error) {
	if err := initORT(opts.ONNXRuntimeLib); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(payload)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected exactly one input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, errors.New("onnx: model has no outputs")
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("onnx: expected float32 tensors, got input %v output %v", in.DataType, out.DataType)
	}
	dims := in.Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D input [batch, features], got %v", dims)
	}
	width := dims[1]
	if width <= 0 {
		return nil, fmt.Errorf("onnx: input feature dimension must be fixed, got %v", dims)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	threads := opts.IntraOpThreads
	if threads <= 0 {
		threads = 1
	}
	if err := sessOpts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("onnx: failed to set thread count: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		payload,
		[]string{in.Name},
		[]string{out.Name},
		sessOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &onnxModel{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
		width:      width,
	}, nil
}

func (m *onnxModel) InputWidth() int {
	return int(m.width)
}

func (m *onnxModel) Infer(input []float64) ([]float64, error) {
	if int64(len(input)) != m.width {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputWidth, len(input), m.width)
	}
	data := make([]float32, len(input))
	for i, v := range input {
		data[i] = float32(v)
	}

	tIn, err := ort.NewTensor(ort.NewShape(1, m.width), data)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	// A nil output lets the runtime allocate a tensor of whatever shape the
	// graph produces.
	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{tIn}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	tOut, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output value type %T", outputs[0])
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	result := make([]float64, len(src))
	for i, v := range src {
		result[i] = float64(v)
	}
	return result, nil
}

func (m *onnxModel) Close() error {
	return m.session.Destroy()
}
