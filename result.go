package sam

import (
	"fmt"
	"image"
	"sync"
)

// Mask 模型空间的 Mask logits, 按行存储
type Mask struct {
	Width  int
	Height int
	Logits []float32
}

// At 返回 (x, y) 处的 logit
func (m Mask) At(x, y int) float32 {
	return m.Logits[y*m.Width+x]
}

// Validate 检查尺寸与数据长度
func (m Mask) Validate() error {
	if m.Width <= 0 || m.Height <= 0 || len(m.Logits) != m.Width*m.Height {
		return fmt.Errorf("%w: Mask 尺寸 %dx%d 与数据长度 %d 不匹配", ErrInvalidArgument, m.Width, m.Height, len(m.Logits))
	}
	return nil
}

// Result 分割结果
//
// Masks 和 Scores 一一对应, 不保证按分数排序
type Result struct {
	Masks  []Mask
	Scores []float32
	// 原图尺寸
	Width  int
	Height int
	// FrameIndex 视频帧序号, 静态图片为 0
	FrameIndex int
	ObjectID   int
}

// BestIndex 分数最高的下标, 分数相同时取第一个, 为空时返回 -1
func BestIndex(scores []float32) int {
	bestIdx := -1
	for i, s := range scores {
		if bestIdx < 0 || s > scores[bestIdx] {
			bestIdx = i
		}
	}
	return bestIdx
}

// Best 最佳 Mask 及其分数
func (r *Result) Best() (Mask, float32, bool) {
	idx := BestIndex(r.Scores)
	if idx < 0 || idx >= len(r.Masks) {
		return Mask{}, 0, false
	}
	return r.Masks[idx], r.Scores[idx], true
}

// ParseMasks 解析解码器输出
//
// # Params:
//
//	masks: [1, M, H, W] 或 [1, 1, M, H, W] 的 logits
//	scores: M 个置信度
func ParseMasks(masks, scores *Tensor) ([]Mask, []float32, error) {
	if masks == nil || scores == nil {
		return nil, nil, fmt.Errorf("缺少 masks 或 scores 输出")
	}
	if len(masks.Shape) < 3 {
		return nil, nil, fmt.Errorf("masks 形状 %v 无效", masks.Shape)
	}
	if err := masks.Validate(); err != nil {
		return nil, nil, err
	}
	h := int(masks.Shape[len(masks.Shape)-2])
	w := int(masks.Shape[len(masks.Shape)-1])
	if h <= 0 || w <= 0 {
		return nil, nil, fmt.Errorf("masks 形状 %v 无效", masks.Shape)
	}
	pixels := h * w
	count := len(masks.Float32) / pixels
	if len(scores.Float32) != count {
		return nil, nil, fmt.Errorf("masks 数量 %d 与 scores 数量 %d 不一致", count, len(scores.Float32))
	}

	out := make([]Mask, count)
	for i := range out {
		logits := make([]float32, pixels)
		copy(logits, masks.Float32[i*pixels:(i+1)*pixels])
		out[i] = Mask{Width: w, Height: h, Logits: logits}
	}
	return out, append([]float32(nil), scores.Float32...), nil
}

// Segmenter 图片分割
type Segmenter interface {
	Segment(img image.Image, prompt Prompt) (*Result, error)
	Destroy() error
}

// VideoSegmenter 带时序记忆的视频分割
type VideoSegmenter interface {
	Segmenter
	SegmentFrame(img image.Image, prompt Prompt, frameIndex int) (*Result, error)
	ClearMemoryCache()
}

// Guard 串行化对 Segmenter 的调用
type Guard struct {
	mu sync.Mutex
	s  Segmenter
}

// NewGuard 包装 Segmenter, 同一时间只有一个调用在执行
func NewGuard(s Segmenter) *Guard {
	return &Guard{s: s}
}

// Segment 分割
func (g *Guard) Segment(img image.Image, prompt Prompt) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Segment(img, prompt)
}

// Destroy 释放资源
func (g *Guard) Destroy() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Destroy()
}
