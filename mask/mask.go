// Package mask Mask 后处理: 二值化、坐标映射、叠加合成
package mask

import (
	"image"
	"math"

	"github.com/getcharzp/go-sam"
)

// Threshold 概率阈值, sigmoid(logit) > 0.5 等价于 logit > 0
const Threshold = 0.5

// Sigmoid logit 转概率
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// Positive 是否属于前景, 直接比较 logit 避免 exp 运算
func Positive(logit float32) bool {
	return logit > 0
}

// SampleIndex 最近邻映射, floor(t / dst * src), 不超过 src-1
func SampleIndex(t, dst, src int) int {
	i := t * src / dst
	if i >= src {
		i = src - 1
	}
	return i
}

// sampleTable 预先计算目标坐标对应的 Mask 坐标
func sampleTable(dst, src int) []int {
	table := make([]int, dst)
	for t := range table {
		table[t] = SampleIndex(t, dst, src)
	}
	return table
}

// Binarize Mask logits 映射到原图尺寸并二值化 (0 或 255)
//
// # Params:
//
//	m: 模型空间的 Mask
//	w, h: 原图尺寸
func Binarize(m sam.Mask, w, h int) (*image.Gray, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, invalidSize(w, h)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	xIdx := sampleTable(w, m.Width)
	for y := 0; y < h; y++ {
		my := SampleIndex(y, h, m.Height)
		row := m.Logits[my*m.Width : (my+1)*m.Width]
		for x := 0; x < w; x++ {
			if Positive(row[xIdx[x]]) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out, nil
}

// Bounds 前景在 Mask 空间的外接矩形
func Bounds(m sam.Mask) (image.Rectangle, bool) {
	if m.Validate() != nil {
		return image.Rectangle{}, false
	}
	minX, minY, maxX, maxY := m.Width, m.Height, -1, -1
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !Positive(m.At(x, y)) {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// ImageBounds 前景在原图空间的外接矩形
//
// # Params:
//
//	m: 模型空间的 Mask
//	w, h: 原图尺寸
func ImageBounds(m sam.Mask, w, h int) (image.Rectangle, bool) {
	r, ok := Bounds(m)
	if !ok || w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	// Mask 坐标 -> 原图坐标, 取覆盖该 Mask 单元的像素范围
	scaleX := float64(w) / float64(m.Width)
	scaleY := float64(h) / float64(m.Height)
	rect := image.Rect(
		int(math.Floor(float64(r.Min.X)*scaleX)),
		int(math.Floor(float64(r.Min.Y)*scaleY)),
		int(math.Ceil(float64(r.Max.X)*scaleX)),
		int(math.Ceil(float64(r.Max.Y)*scaleY)),
	)
	return rect.Intersect(image.Rect(0, 0, w, h)), true
}

// Area 前景像素占比
func Area(m sam.Mask) float64 {
	if len(m.Logits) == 0 {
		return 0
	}
	n := 0
	for _, v := range m.Logits {
		if Positive(v) {
			n++
		}
	}
	return float64(n) / float64(len(m.Logits))
}

// ToGray 模型空间的二值 Mask
func ToGray(m sam.Mask) (*image.Gray, error) {
	return Binarize(m, m.Width, m.Height)
}

