package mask

import (
	"fmt"
	"image"

	"github.com/getcharzp/go-sam"
)

// Renderer 把分割结果渲染为叠加图
type Renderer struct {
	Palette *Palette
	Labels  *sam.LabelDrawer // (可选) 为空时不标注分数
	Alpha   float64
	Workers int // (可选) 并行合成的 worker 数
}

// NewRenderer 创建渲染器
func NewRenderer(labels *sam.LabelDrawer) *Renderer {
	return &Renderer{
		Palette: NewPalette(),
		Labels:  labels,
		Alpha:   0.5,
	}
}

// Render 叠加最佳 Mask, 并在其左上角标注分数
func (r *Renderer) Render(img image.Image, res *sam.Result) (*image.NRGBA, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: 分割结果为空", sam.ErrInvalidArgument)
	}
	m, score, ok := res.Best()
	if !ok {
		return nil, fmt.Errorf("%w: 分割结果不包含 Mask", sam.ErrInvalidArgument)
	}

	c := r.Palette.Color(res.ObjectID)
	out, err := OverlayParallel(img, m, c, r.Alpha, r.Workers)
	if err != nil {
		return nil, err
	}
	if r.Labels == nil {
		return out, nil
	}

	b := out.Bounds()
	box, ok := ImageBounds(m, b.Dx(), b.Dy())
	if !ok {
		return out, nil
	}
	r.Labels.DrawLabel(out, Label(res.ObjectID, score), box.Min, sam.ContrastColor(c), c)
	return out, nil
}

// Label 目标标签文本
func Label(objectID int, score float32) string {
	return fmt.Sprintf("#%d %.3f", objectID, score)
}
