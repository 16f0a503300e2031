package sam

import (
	"fmt"
	"slices"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// onnxruntime 中的执行提供者名称
const (
	ProviderCUDA     = "CUDAExecutionProvider"
	ProviderTensorRT = "TensorrtExecutionProvider"
	ProviderDirectML = "DmlExecutionProvider"
	ProviderCoreML   = "CoreMLExecutionProvider"
	ProviderQNN      = "QNNExecutionProvider"
	ProviderOpenVINO = "OpenVINOExecutionProvider"
	ProviderXNNPACK  = "XnnpackExecutionProvider"
	ProviderCPU      = "CPUExecutionProvider"
)

var providerAliases = map[string]string{
	"cuda":     ProviderCUDA,
	"tensorrt": ProviderTensorRT,
	"trt":      ProviderTensorRT,
	"directml": ProviderDirectML,
	"dml":      ProviderDirectML,
	"coreml":   ProviderCoreML,
	"qnn":      ProviderQNN,
	"openvino": ProviderOpenVINO,
	"xnnpack":  ProviderXNNPACK,
	"cpu":      ProviderCPU,
}

// ExecutionProvider 执行提供者候选项
type ExecutionProvider struct {
	Name   string
	Enable func() error
}

// ProviderName 把简写 (cuda, coreml ...) 转换为 onnxruntime 的名称
func ProviderName(alias string) string {
	if name, ok := providerAliases[strings.ToLower(alias)]; ok {
		return name
	}
	return alias
}

// DefaultExecutionProviders 按平台返回执行提供者的默认优先顺序
//
// GPU > 神经网络加速器 > 厂商推理后端 > 通用 CPU 内核
//
// # Params:
//
//	options: 需要追加执行提供者的会话选项
//	goos, goarch: 运行平台
//	allowCPU: 是否把默认 CPU 放在最后兜底
func DefaultExecutionProviders(options *ort.SessionOptions, goos, goarch string, allowCPU bool) []ExecutionProvider {
	var names []string
	switch goos {
	case "darwin", "ios":
		names = []string{ProviderCoreML, ProviderXNNPACK}
	case "android":
		names = []string{ProviderQNN, ProviderXNNPACK}
	case "windows":
		names = []string{ProviderCUDA, ProviderTensorRT, ProviderDirectML}
		if goarch == "arm64" {
			names = append(names, ProviderQNN)
		}
		names = append(names, ProviderOpenVINO)
	default:
		names = []string{ProviderCUDA, ProviderTensorRT}
		if goarch == "arm64" {
			names = append(names, ProviderQNN)
		}
		names = append(names, ProviderOpenVINO)
		if goarch == "arm64" {
			names = append(names, ProviderXNNPACK)
		}
	}
	if allowCPU {
		names = append(names, ProviderCPU)
	}

	providers := make([]ExecutionProvider, 0, len(names))
	for _, name := range names {
		providers = append(providers, ExecutionProvider{
			Name:   name,
			Enable: enableFunc(options, name, goos),
		})
	}
	return providers
}

func enableFunc(options *ort.SessionOptions, name, goos string) func() error {
	if options == nil && name != ProviderCPU {
		return func() error {
			return fmt.Errorf("启用 %s 失败: 会话选项未创建", name)
		}
	}
	switch name {
	case ProviderCUDA:
		return func() error {
			cudaOptions, err := ort.NewCUDAProviderOptions()
			if err != nil {
				return fmt.Errorf("创建 CUDAProviderOptions 失败: %w", err)
			}
			defer cudaOptions.Destroy()
			return options.AppendExecutionProviderCUDA(cudaOptions)
		}
	case ProviderTensorRT:
		return func() error {
			trtOptions, err := ort.NewTensorRTProviderOptions()
			if err != nil {
				return fmt.Errorf("创建 TensorRTProviderOptions 失败: %w", err)
			}
			defer trtOptions.Destroy()
			return options.AppendExecutionProviderTensorRT(trtOptions)
		}
	case ProviderDirectML:
		return func() error {
			return options.AppendExecutionProviderDirectML(0)
		}
	case ProviderCoreML:
		return func() error {
			return options.AppendExecutionProviderCoreML(0)
		}
	case ProviderQNN:
		backend := "libQnnHtp.so"
		if goos == "windows" {
			backend = "QnnHtp.dll"
		}
		return func() error {
			return options.AppendExecutionProvider("QNN", map[string]string{"backend_path": backend})
		}
	case ProviderOpenVINO:
		return func() error {
			return options.AppendExecutionProviderOpenVINO(map[string]string{})
		}
	case ProviderXNNPACK:
		return func() error {
			return options.AppendExecutionProvider("XNNPACK", map[string]string{})
		}
	case ProviderCPU:
		// CPU 是 onnxruntime 的默认执行提供者, 无需追加
		return func() error { return nil }
	default:
		return func() error {
			return fmt.Errorf("未知的执行提供者 %s", name)
		}
	}
}

// OrderExecutionProviders 按用户指定的顺序过滤候选项
//
// preferred 为空时原样返回, 未知名称会被忽略
func OrderExecutionProviders(candidates []ExecutionProvider, preferred []string) []ExecutionProvider {
	if len(preferred) == 0 {
		return candidates
	}
	ordered := make([]ExecutionProvider, 0, len(preferred))
	for _, alias := range preferred {
		name := ProviderName(alias)
		idx := slices.IndexFunc(candidates, func(p ExecutionProvider) bool { return p.Name == name })
		if idx < 0 {
			Logger().Warn("execution provider not supported on this platform", zap.String("provider", alias))
			continue
		}
		ordered = append(ordered, candidates[idx])
	}
	return ordered
}

// SelectExecutionProvider 依次尝试启用执行提供者, 返回第一个启用成功的名称
//
// 单个提供者启用失败只记录日志并继续尝试下一个
//
// # Params:
//
//	candidates: 按优先级排序的候选项
//	available: onnxruntime 报告可用的名称, nil 表示未知, 全部尝试
func SelectExecutionProvider(candidates []ExecutionProvider, available []string) (string, error) {
	for _, p := range candidates {
		if available != nil && p.Name != ProviderCPU && !slices.Contains(available, p.Name) {
			Logger().Debug("execution provider not available", zap.String("provider", p.Name))
			continue
		}
		if err := p.Enable(); err != nil {
			Logger().Warn("enable execution provider failed, trying next",
				zap.String("provider", p.Name), zap.Error(err))
			continue
		}
		return p.Name, nil
	}
	names := make([]string, 0, len(candidates))
	for _, p := range candidates {
		names = append(names, p.Name)
	}
	return "", fmt.Errorf("%w: 已尝试 %v", ErrBackendUnavailable, names)
}
