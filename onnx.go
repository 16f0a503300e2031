package sam

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

type OnnxConfig struct {
	SessionOptions *ort.SessionOptions
	// Provider 最终启用的执行提供者
	Provider string

	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	// 可选参数
	Providers          []string // (可选) 执行提供者的优先顺序, 为空时按平台默认顺序
	AvailableProviders []string // (可选) 运行时报告可用的执行提供者, 为空时逐个尝试
	AllowCPUFallback   bool     // (可选) 其余执行提供者都失败时是否使用 CPU
	NumThreads         int      // (可选) ONNX 线程数, 默认由CPU核心数决定
	GraphOptimization  string   // (可选) 图优化级别 disable|basic|extended|all, 默认 all
}

var (
	initErr error
	once    sync.Once
)

// New 初始化 ONNX 环境并创建会话选项
func (cfg *OnnxConfig) New() error {
	// 初始化 ONNX Runtime
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("%w: OnnxRuntimeLibPath 不能为空", ErrInvalidArgument)
	}
	once.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLibPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", initErr)
	}

	level, err := ParseGraphOptimization(cfg.GraphOptimization)
	if err != nil {
		return err
	}

	// 创建会话选项 (设置线程)
	options, err := ort.NewSessionOptions()
	if err != nil {
		return err
	}
	threads := IntraOpThreads(cfg.NumThreads)
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		options.Destroy()
		return err
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		options.Destroy()
		return err
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		options.Destroy()
		return err
	}

	// 选择执行提供者
	candidates := DefaultExecutionProviders(options, runtime.GOOS, runtime.GOARCH, cfg.AllowCPUFallback)
	candidates = OrderExecutionProviders(candidates, cfg.Providers)
	provider, err := SelectExecutionProvider(candidates, cfg.AvailableProviders)
	if err != nil {
		options.Destroy()
		return err
	}
	Logger().Info("onnx runtime ready",
		zap.String("provider", provider),
		zap.Int("intra_op_threads", threads),
		zap.String("graph_optimization", cfg.GraphOptimization))

	cfg.SessionOptions = options
	cfg.Provider = provider
	return nil
}

// Destroy 释放会话选项, 会话创建完成后即可调用
func (cfg *OnnxConfig) Destroy() {
	if cfg.SessionOptions != nil {
		cfg.SessionOptions.Destroy()
		cfg.SessionOptions = nil
	}
}

// ParseGraphOptimization 解析图优化级别
func ParseGraphOptimization(s string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	case "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "disable", "none":
		return ort.GraphOptimizationLevelDisableAll, nil
	default:
		return 0, fmt.Errorf("%w: 未知的图优化级别 %q", ErrInvalidArgument, s)
	}
}

// DefaultLibraryPath 根据运行时环境判断加载哪个库文件
func DefaultLibraryPath() string {
	baseDir := "./lib/"
	libName := "onnxruntime"

	// windows onnxruntime.dll
	if runtime.GOOS == "windows" {
		return baseDir + libName + ".dll"
	}

	// linux darwin ext
	var ext string
	switch runtime.GOOS {
	case "darwin", "ios":
		ext = "dylib"
	case "linux", "android":
		ext = "so"
	default:
		return baseDir + libName + "_amd64.so" // 默认返回 linux amd64
	}

	// 拼接完整路径: ./lib/onnxruntime + _ + amd64/arm64 + . + so/dylib
	return fmt.Sprintf("%s%s_%s.%s", baseDir, libName, runtime.GOARCH, ext)
}
