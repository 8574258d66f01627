package model

import (
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initializes the shared onnxruntime environment once per
// process. Sessions come and go per iteration; the environment stays up.
func initRuntime() error {
	ortInitOnce.Do(func() {
		path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
		if path == "" {
			ortInitErr = fmt.Errorf("onnxruntime shared library not configured: " +
				"set ONNXRUNTIME_SHARED_LIBRARY_PATH to the onnxruntime shared object")
			return
		}
		ort.SetSharedLibraryPath(path)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxModel wraps one inference session over a classification model with
// inputs input_ids/attention_mask and a logits output.
type onnxModel struct {
	session   *ort.DynamicAdvancedSession
	numLabels int64
	perToken  bool
}

func newONNXModel(modelPath string, numLabels int, perToken bool, device string) (*onnxModel, error) {
	if err := initRuntime(); err != nil {
		return nil, err
	}
	if numLabels < 1 {
		return nil, fmt.Errorf("model %s: label count unknown", modelPath)
	}

	options, err := sessionOptions(device)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", modelPath, err)
	}

	return &onnxModel{
		session:   session,
		numLabels: int64(numLabels),
		perToken:  perToken,
	}, nil
}

func sessionOptions(device string) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}

	deviceID, ok := strings.CutPrefix(device, "cuda:")
	if !ok {
		return options, nil
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, fmt.Errorf("CUDA execution provider unavailable: %w", err)
	}
	if err := cudaOptions.Update(map[string]string{"device_id": deviceID}); err != nil {
		cudaOptions.Destroy()
		options.Destroy()
		return nil, fmt.Errorf("configuring CUDA execution provider: %w", err)
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		cudaOptions.Destroy()
		options.Destroy()
		return nil, fmt.Errorf("appending CUDA execution provider: %w", err)
	}
	if err := cudaOptions.Destroy(); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (m *onnxModel) Forward(batch Batch) ([][]float32, error) {
	inputShape := []int64{batch.Size, batch.SeqLen}

	inputIDs, err := ort.NewTensor[int64](inputShape, batch.InputIDs)
	if err != nil {
		return nil, err
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor[int64](inputShape, batch.AttentionMask)
	if err != nil {
		return nil, err
	}
	defer attentionMask.Destroy()

	outputShape := []int64{batch.Size, m.numLabels}
	if m.perToken {
		outputShape = []int64{batch.Size, batch.SeqLen, m.numLabels}
	}
	logits, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, err
	}
	defer logits.Destroy()

	inputs := []ort.Value{ort.Value(inputIDs), ort.Value(attentionMask)}
	outputs := []ort.Value{ort.Value(logits)}
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	data := logits.GetData()
	rowLen := int(m.numLabels)
	if m.perToken {
		rowLen = int(batch.SeqLen * m.numLabels)
	}
	rows := make([][]float32, batch.Size)
	for i := range rows {
		row := make([]float32, rowLen)
		copy(row, data[i*rowLen:(i+1)*rowLen])
		rows[i] = row
	}
	return rows, nil
}

func (m *onnxModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
