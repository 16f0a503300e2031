package sam

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultLabelSize 标签默认字号
const DefaultLabelSize = 12

// labelPadding 文字与底色边缘的间距 (像素)
const labelPadding = 2

// LabelDrawer 在叠加图上绘制带底色的目标标签
//
// font.Face 不能并发使用, 所有绘制都在锁内完成
type LabelDrawer struct {
	mu   sync.Mutex
	face font.Face
	size float64
}

// NewLabelDrawer 从字体文件创建标签绘制工具
//
// # Params:
//
//	fontPath: 字体路径, 为空时使用内置的 Go Regular 字体
//	size: 字号, <= 0 时使用 DefaultLabelSize
func NewLabelDrawer(fontPath string, size float64) (*LabelDrawer, error) {
	fontBytes := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("打开字体文件失败: %w", err)
		}
		fontBytes = b
	}
	if size <= 0 {
		size = DefaultLabelSize
	}

	f, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("创建字体失败: %w", err)
	}
	return &LabelDrawer{face: face, size: size}, nil
}

// NewDefaultLabelDrawer 内置字体, 默认字号
func NewDefaultLabelDrawer() (*LabelDrawer, error) {
	return NewLabelDrawer("", DefaultLabelSize)
}

// Size 字号
func (d *LabelDrawer) Size() float64 {
	return d.size
}

// Measure 标签 (含底色) 的宽高
func (d *LabelDrawer) Measure(text string) image.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h, _ := d.measure(text)
	return image.Pt(w, h)
}

func (d *LabelDrawer) measure(text string) (w, h, ascent int) {
	m := d.face.Metrics()
	ascent = m.Ascent.Ceil()
	w = font.MeasureString(d.face, text).Ceil() + 2*labelPadding
	h = ascent + m.Descent.Ceil() + 2*labelPadding
	return w, h, ascent
}

// DrawLabel 在 anchor 上方绘制标签, 上方放不下时画在 anchor 下方, 水平方向收进图片内
//
// # Params:
//
//	dst: 被绘制的图像
//	text: 标签文本
//	anchor: 目标外接框左上角
//	fg, bg: 文字颜色与底色
//
// 返回标签实际占用的区域, 图片放不下时为空
func (d *LabelDrawer) DrawLabel(dst draw.Image, text string, anchor image.Point, fg, bg color.Color) image.Rectangle {
	if d == nil || text == "" {
		return image.Rectangle{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.face == nil {
		return image.Rectangle{}
	}

	bounds := dst.Bounds()
	w, h, ascent := d.measure(text)
	if w > bounds.Dx() || h > bounds.Dy() {
		return image.Rectangle{}
	}

	x := min(max(anchor.X, bounds.Min.X), bounds.Max.X-w)
	y := anchor.Y - h
	if y < bounds.Min.Y {
		y = min(anchor.Y, bounds.Max.Y-h)
	}
	rect := image.Rect(x, y, x+w, y+h)

	draw.Draw(dst, rect, image.NewUniform(bg), image.Point{}, draw.Src)
	fd := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: d.face,
		Dot:  fixed.P(x+labelPadding, y+labelPadding+ascent),
	}
	fd.DrawString(text)
	return rect
}

// Close 释放字体
func (d *LabelDrawer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.face != nil {
		d.face.Close()
		d.face = nil
	}
}

// ContrastColor 在 c 上可读的文字颜色, 亮色返回黑色, 暗色返回白色
func ContrastColor(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	// ITU-R BT.601 亮度, 16 位通道
	if 299*r+587*g+114*b > 1000*0x8000 {
		return color.Black
	}
	return color.White
}
