package classifier

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Config configures the TFLite classifier.
type Config struct {
	ModelPath  string
	LabelsPath string
	Threads    int // 0 uses one per physical core
	TopK       int // results returned, 0 for all
}

// TFLite classifies images with a TensorFlow Lite model. The interpreter
// is not reentrant so calls are serialized.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	labels      []Label
	inputSize   int
	inputType   tflite.TensorType
	inputQuant  quantization
	outputType  tflite.TensorType
	outputQuant quantization
	topK        int
}

// NewTFLite loads the model and labels and checks that they agree.
func NewTFLite(cfg Config) (*TFLite, error) {
	start := time.Now()
	log := GetLogger()

	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	threads := determineThreadCount(cfg.Threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	c := &TFLite{
		model:       model,
		interpreter: interpreter,
		labels:      labels,
		topK:        cfg.TopK,
	}
	if err := c.inspectTensors(); err != nil {
		c.release()
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", cfg.ModelPath).
			Context("labels_path", cfg.LabelsPath).
			Build()
	}

	log.Info("classifier model initialized",
		logger.String("model", cfg.ModelPath),
		logger.Int("labels", len(labels)),
		logger.Int("input_size", c.inputSize),
		logger.Any("input_type", c.inputType),
		logger.Int("threads", threads),
		logger.Duration("elapsed", time.Since(start)))
	return c, nil
}

// inspectTensors validates the input shape [1, h, w, 3] with h == w and
// that the output size matches the label count.
func (c *TFLite) inspectTensors() error {
	in := c.interpreter.GetInputTensor(0)
	if in == nil {
		return fmt.Errorf("model has no input tensor")
	}
	if in.NumDims() != 4 || in.Dim(3) != 3 || in.Dim(1) != in.Dim(2) {
		return fmt.Errorf("unsupported input shape, want [1,N,N,3]")
	}
	c.inputSize = in.Dim(1)
	c.inputType = in.Type()
	qp := in.QuantizationParams()
	c.inputQuant = quantization{Scale: qp.Scale, ZeroPoint: qp.ZeroPoint}
	switch c.inputType {
	case tflite.UInt8, tflite.Float32, tflite.Int8:
	default:
		return fmt.Errorf("unsupported input tensor type %v", c.inputType)
	}

	out := c.interpreter.GetOutputTensor(0)
	if out == nil {
		return fmt.Errorf("model has no output tensor")
	}
	classes := out.Dim(out.NumDims() - 1)
	if classes != len(c.labels) {
		return fmt.Errorf("model has %d classes but label file has %d entries", classes, len(c.labels))
	}
	c.outputType = out.Type()
	qp = out.QuantizationParams()
	c.outputQuant = quantization{Scale: qp.Scale, ZeroPoint: qp.ZeroPoint}
	switch c.outputType {
	case tflite.UInt8, tflite.Float32, tflite.Int8:
	default:
		return fmt.Errorf("unsupported output tensor type %v", c.outputType)
	}
	return nil
}

// InputSize is the square edge length the model expects.
func (c *TFLite) InputSize() int {
	return c.inputSize
}

// Labels returns the loaded label table.
func (c *TFLite) Labels() []Label {
	return c.labels
}

// Classify runs the model on img, which must be InputSize square.
// Inference cannot be interrupted; ctx is checked before it starts.
func (c *TFLite) Classify(ctx context.Context, img image.Image) ([]Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter == nil {
		return nil, errors.Newf("classifier is closed").
			Component("classifier").
			Category(errors.CategoryState).
			Build()
	}

	start := time.Now()
	in := c.interpreter.GetInputTensor(0)
	var err error
	switch c.inputType {
	case tflite.UInt8:
		err = fillUint8(in.UInt8s(), img, c.inputSize)
	case tflite.Int8:
		err = fillInt8(in.Int8s(), img, c.inputSize, c.inputQuant)
	default:
		err = fillFloat32(in.Float32s(), img, c.inputSize)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("classifier").
			Category(errors.CategoryClassification).
			Timing("invoke", time.Since(start)).
			Build()
	}

	out := c.interpreter.GetOutputTensor(0)
	var scores []float64
	switch c.outputType {
	case tflite.UInt8:
		scores = dequantizeUint8(out.UInt8s(), c.outputQuant)
	case tflite.Int8:
		scores = dequantizeInt8(out.Int8s(), c.outputQuant)
	default:
		scores = float32sToFloat64(out.Float32s())
	}

	results := Rank(scores, c.labels, c.topK)
	GetLogger().Trace("classification complete",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("results", len(results)))
	return results, nil
}

// Close releases the interpreter and model.
func (c *TFLite) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return nil
}

func (c *TFLite) release() {
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
}

// determineThreadCount caps the configured count at the CPU count. 0 picks
// one thread per physical core, hyperthreads add little to inference.
func determineThreadCount(configured int) int {
	cpus := runtime.NumCPU()
	if configured <= 0 {
		configured = cpuid.CPU.PhysicalCores
	}
	if configured <= 0 || configured > cpus {
		return cpus
	}
	return configured
}
