package sam

import (
	"fmt"
	"image"
)

type Label int

const (
	LabelBackground  Label = 0 // 背景/排除
	LabelForeground  Label = 1 // 前景/点击
	LabelBoxTopLeft  Label = 2 // 框选左上
	LabelBoxBotRight Label = 3 // 框选右下
)

// Prompt 分割提示
type Prompt struct {
	Points []image.Point // 原图坐标, 与 img.Bounds() 同一坐标系
	Labels []Label       // 与 Points 一一对应
	// Box (可选) 框选区域, 以左上/右下两个点追加在 Points 之后
	Box *image.Rectangle
	// ObjectID (可选) 视频分割时的目标编号
	ObjectID int
}

// Validate 检查点与标签数量是否一致
func (p Prompt) Validate() error {
	if len(p.Points) != len(p.Labels) {
		return fmt.Errorf("%w: 点数量 %d 与标签数量 %d 不一致", ErrInvalidArgument, len(p.Points), len(p.Labels))
	}
	for i, l := range p.Labels {
		if l < LabelBackground || l > LabelBoxBotRight {
			return fmt.Errorf("%w: 第 %d 个标签 %d 无效", ErrInvalidArgument, i, l)
		}
	}
	return nil
}

// Empty 没有点也没有框
func (p Prompt) Empty() bool {
	return len(p.Points) == 0 && p.Box == nil
}

// EncodedPrompt 模型空间的提示
type EncodedPrompt struct {
	Coords []float32 // [P, 2]
	Labels []float32 // [P]
}

// NumPoints 点数量 (含框的两个角点)
func (e EncodedPrompt) NumPoints() int {
	return len(e.Labels)
}

// Int64Labels int64 形式的标签
func (e EncodedPrompt) Int64Labels() []int64 {
	labels := make([]int64, len(e.Labels))
	for i, l := range e.Labels {
		labels[i] = int64(l)
	}
	return labels
}

// EncodePrompt 把原图坐标转换到模型输入空间
//
// # Params:
//
//	p: 提示
//	bounds: 原图范围, 坐标先减去 bounds.Min
//	size: 模型输入边长
func EncodePrompt(p Prompt, bounds image.Rectangle, size int) (EncodedPrompt, error) {
	if err := p.Validate(); err != nil {
		return EncodedPrompt{}, err
	}
	if p.Empty() {
		return EncodedPrompt{}, fmt.Errorf("%w: 提示为空", ErrInvalidArgument)
	}
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= 0 || origH <= 0 || size <= 0 {
		return EncodedPrompt{}, fmt.Errorf("%w: 尺寸无效 %dx%d -> %d", ErrInvalidArgument, origW, origH, size)
	}

	// 宽高分别缩放, 原图不一定是正方形
	scaleX := float32(size) / float32(origW)
	scaleY := float32(size) / float32(origH)

	n := len(p.Points)
	if p.Box != nil {
		n += 2
	}
	enc := EncodedPrompt{
		Coords: make([]float32, 0, n*2),
		Labels: make([]float32, 0, n),
	}
	for i, pt := range p.Points {
		pt = pt.Sub(bounds.Min)
		enc.Coords = append(enc.Coords, float32(pt.X)*scaleX, float32(pt.Y)*scaleY)
		enc.Labels = append(enc.Labels, float32(p.Labels[i]))
	}
	if p.Box != nil {
		box := p.Box.Canon().Sub(bounds.Min)
		enc.Coords = append(enc.Coords,
			float32(box.Min.X)*scaleX, float32(box.Min.Y)*scaleY,
			float32(box.Max.X)*scaleX, float32(box.Max.Y)*scaleY,
		)
		enc.Labels = append(enc.Labels, float32(LabelBoxTopLeft), float32(LabelBoxBotRight))
	}
	return enc, nil
}
