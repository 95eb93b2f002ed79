package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Kind selects the input framing and defaults of a model.
type Kind string

const (
	KindEmail Kind = "email"
	KindURL   Kind = "url"
)

// DefaultLabels returns the label order the fine-tuned models were exported with.
func DefaultLabels(kind Kind) []string {
	if kind == KindURL {
		return []string{"legitimate_url", "phishing_url"}
	}
	return []string{"legitimate_email", "phishing_url", "legitimate_url", "phishing_url_alt"}
}

// DefaultSeqLen returns the maximum token length for a model kind.
func DefaultSeqLen(kind Kind) int {
	if kind == KindURL {
		return 256
	}
	return 512
}

// ModelConfig locates an exported sequence-classification model.
type ModelConfig struct {
	Kind              Kind
	Dir               string
	SeqLen            int
	SharedLibraryPath string
}

// Model runs a DistilBERT sequence classifier through onnxruntime.
type Model struct {
	kind      Kind
	session   *ort.AdvancedSession
	tokenizer *WordPieceTokenizer
	labels    []string
	seqLen    int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

var ortInitMu sync.Mutex

// LoadModel initialises onnxruntime, the tokenizer and the session tensors.
// The directory holds model.onnx, vocab.txt and an optional label_map.json.
func LoadModel(cfg ModelConfig) (*Model, error) {
	if cfg.Dir == "" {
		return nil, errors.New("model dir is empty")
	}
	if cfg.Kind == "" {
		cfg.Kind = KindEmail
	}
	seqLen := cfg.SeqLen
	if seqLen <= 0 {
		seqLen = DefaultSeqLen(cfg.Kind)
	}

	modelPath := filepath.Join(cfg.Dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	if err := initRuntime(cfg); err != nil {
		return nil, err
	}

	labels := DefaultLabels(cfg.Kind)
	labelsPath := filepath.Join(cfg.Dir, "label_map.json")
	if _, err := os.Stat(labelsPath); err == nil {
		labels, err = loadLabels(labelsPath)
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
	}

	tokenizer, err := LoadWordPieceTokenizer(filepath.Join(cfg.Dir, "vocab.txt"))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Model{
		kind:          cfg.Kind,
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		seqLen:        seqLen,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

func initRuntime(cfg ModelConfig) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	libPath := cfg.SharedLibraryPath
	if libPath == "" {
		libPath = resolveSharedLibraryPath(cfg.Dir)
	}
	if libPath == "" {
		return errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Predict tokenizes text, runs the session and softmaxes the logits.
// Calls are serialised because the session tensors are shared.
func (m *Model) Predict(ctx context.Context, text string) (Prediction, error) {
	if m == nil || m.tokenizer == nil {
		return Prediction{}, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	ids, attn := m.tokenizer.Encode(text, m.seqLen)

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Prediction{}, ErrNotLoaded
	}
	copy(m.inputIDs.GetData(), ids)
	copy(m.attentionMask.GetData(), attn)
	err := m.session.Run()
	logits := append([]float32(nil), m.output.GetData()...)
	m.mu.Unlock()
	if err != nil {
		return Prediction{}, fmt.Errorf("onnx run: %w", err)
	}

	probs, err := Softmax(m.labels, logits)
	if err != nil {
		return Prediction{}, err
	}
	return FromProbabilities(probs)
}

// Labels returns the label order of the output logits.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Close releases the session and tensors.
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := errors.Join(
		m.session.Destroy(),
		m.inputIDs.Destroy(),
		m.attentionMask.Destroy(),
		m.output.Destroy(),
	)
	m.session = nil
	return err
}

// EmailInput frames an email the way the email model was fine-tuned.
func EmailInput(subject, from, body string) string {
	return "Subject: " + subject + "\nFrom: " + from + "\n\n" + body
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	out := make([]string, len(m))
	for k, v := range m {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

// resolveSharedLibraryPath locates a platform onnxruntime library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins over probing.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
