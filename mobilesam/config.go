package mobilesam

import "github.com/getcharzp/go-sam"

// 编码器/解码器的输入输出名称, 由模型导出方式决定, 不可配置
const (
	encoderInput  = "image"
	encoderOutput = "image_embeddings"

	decoderEmbeddings   = "image_embeddings"
	decoderPointCoords  = "point_coords"
	decoderPointLabels  = "point_labels"
	decoderMaskInput    = "mask_input"
	decoderHasMaskInput = "has_mask_input"

	decoderMasks  = "masks"
	decoderScores = "iou_predictions"
)

// maskInputSize mask_input 的边长
const maskInputSize = 256

var (
	encoderInputs  = []string{encoderInput}
	encoderOutputs = []string{encoderOutput}
	decoderInputs  = []string{
		decoderEmbeddings, decoderPointCoords, decoderPointLabels,
		decoderMaskInput, decoderHasMaskInput,
	}
	decoderOutputs = []string{decoderMasks, decoderScores}
)

// Config 配置项
type Config struct {
	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	EncodeModelPath    string // 图片特征提取模型
	DecodeModelPath    string // Mask解码模型

	// 可选参数
	Providers          []string // (可选) 执行提供者优先顺序, 如 cuda, coreml, cpu
	AvailableProviders []string // (可选) 运行时可用的执行提供者
	AllowCPUFallback   bool     // (可选) 是否允许回退到 CPU
	NumThreads         int      // (可选) ONNX 线程数, 默认由CPU核心数决定
	GraphOptimization  string   // (可选) 图优化级别
	EmbeddingCacheSize int      // (可选) 缓存的图片特征数量, 0 表示不缓存
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: sam.DefaultLibraryPath(),
		EncodeModelPath:    "./mobilesam_weights/mobile_sam_encoder.onnx",
		DecodeModelPath:    "./mobilesam_weights/mobile_sam_decoder.onnx",
		AllowCPUFallback:   true,
		EmbeddingCacheSize: 4,
	}
}
