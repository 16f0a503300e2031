package sam2

import "github.com/getcharzp/go-sam"

// 编码器/解码器的输入输出名称, 由模型导出方式决定, 不可配置
const (
	encoderInput = "pixel_values"

	decoderPoints = "input_points"
	decoderLabels = "input_labels"
	decoderBoxes  = "input_boxes"

	decoderScores      = "iou_scores"
	decoderMasks       = "pred_masks"
	decoderObjectScore = "object_score_logits"
)

// DefaultMaxMemoryFrames 每个目标保留的帧记忆数量
const DefaultMaxMemoryFrames = 7

var (
	embeddingNames = []string{"image_embeddings.0", "image_embeddings.1", "image_embeddings.2"}

	encoderInputs  = []string{encoderInput}
	encoderOutputs = embeddingNames
	decoderInputs  = append([]string{decoderPoints, decoderLabels, decoderBoxes}, embeddingNames...)
	decoderOutputs = []string{decoderScores, decoderMasks, decoderObjectScore}
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
	EmbeddingCacheSize int      // (可选) 静态图片特征缓存数量, 0 表示不缓存
	MaxMemoryFrames    int      // (可选) 每个目标保留的帧记忆数量, 默认 7
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: sam.DefaultLibraryPath(),
		EncodeModelPath:    "./sam2_weights/vision_encoder.onnx",
		DecodeModelPath:    "./sam2_weights/prompt_encoder_mask_decoder.onnx",
		AllowCPUFallback:   true,
		MaxMemoryFrames:    DefaultMaxMemoryFrames,
	}
}
