package signal

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"digit-trader-go/market"
)

// ModelExtractor 包装一个外部训练的 ONNX 数字分布模型，
// 作为一个普通提取器参与集成。模型输入为最近 seqLen 个数字
// （归一化到 [0,1] 的 float32），输出 10 维分布。
// 推理失败按提取器失败处理：调用方替换为中性结果。
type ModelExtractor struct {
	seqLen  int
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// InitializeORT 设置 onnxruntime 动态库路径并初始化环境。
// 重复调用无害。
func InitializeORT(libPath string) error {
	if libPath == "" {
		switch runtime.GOOS {
		case "windows":
			libPath = "onnxruntime.dll"
		case "darwin":
			libPath = "libonnxruntime.dylib"
		default:
			libPath = "/usr/lib/libonnxruntime.so"
		}
	}
	ort.SetSharedLibraryPath(libPath)
	return ort.InitializeEnvironment()
}

// NewModelExtractor 加载 modelPath 指定的 ONNX 模型；
// seqLen<=0 时取 60。
func NewModelExtractor(modelPath string, seqLen int) (*ModelExtractor, error) {
	if seqLen <= 0 {
		seqLen = 60
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, seqLen))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, 10)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ModelExtractor{
		seqLen:  seqLen,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (e *ModelExtractor) Name() string { return MethodModel }

func (e *ModelExtractor) MinSamples() int { return e.seqLen }

func (e *ModelExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.seqLen {
		return Neutral(MethodModel)
	}

	digits := win.LastDigits(e.seqLen)
	data := e.input.GetData()
	for i, d := range digits {
		data[i] = float32(d) / 9.0
	}

	if err := e.session.Run(); err != nil {
		// 推理失败退化为中性，由集成层记录日志。
		return Neutral(MethodModel)
	}

	dist := e.output.GetData()
	scores := make(map[int]float64, 10)
	for d := 0; d < 10 && d < len(dist); d++ {
		v := float64(dist[d])
		if v < 0 {
			v = 0
		}
		scores[d] = v
	}

	return Result{
		Method:      MethodModel,
		DigitScores: scores,
		Scalars:     map[string]float64{},
	}
}

// Close 释放 ONNX 会话与张量。
func (e *ModelExtractor) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}
