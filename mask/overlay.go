package mask

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-sam"
	"golang.org/x/sync/errgroup"
)

// parallelPixels 像素数达到该值时使用并行合成
const parallelPixels = 256 * 256

// Overlay 把 Mask 以指定颜色和透明度叠加到图片上, 返回新图片
//
// 覆盖到的像素: out = (1-alpha)*原值 + alpha*颜色, alpha 通道不变
//
// # Params:
//
//	img: 原图
//	m: 模型空间的 Mask logits
//	c: 叠加颜色 (忽略 A)
//	alpha: 叠加强度 [0, 1]
func Overlay(img image.Image, m sam.Mask, c color.RGBA, alpha float64) (*image.NRGBA, error) {
	if err := validate(img, m, alpha); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx()*b.Dy() >= parallelPixels {
		return overlayParallel(img, m, c, alpha, sam.CompositeWorkers())
	}
	return overlayScalar(img, m, c, alpha), nil
}

// OverlayScalar 单线程合成
func OverlayScalar(img image.Image, m sam.Mask, c color.RGBA, alpha float64) (*image.NRGBA, error) {
	if err := validate(img, m, alpha); err != nil {
		return nil, err
	}
	return overlayScalar(img, m, c, alpha), nil
}

// OverlayParallel 按行切分到多个 worker 并行合成
//
// # Params:
//
//	workers: worker 数量, <= 0 时由 CPU 核心数决定
func OverlayParallel(img image.Image, m sam.Mask, c color.RGBA, alpha float64, workers int) (*image.NRGBA, error) {
	if err := validate(img, m, alpha); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = sam.CompositeWorkers()
	}
	return overlayParallel(img, m, c, alpha, workers)
}

func validate(img image.Image, m sam.Mask, alpha float64) error {
	if img == nil {
		return fmt.Errorf("%w: 图片为空", sam.ErrInvalidArgument)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("%w: 图片尺寸为 0", sam.ErrInvalidArgument)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return fmt.Errorf("%w: alpha %v 不在 [0, 1] 内", sam.ErrInvalidArgument, alpha)
	}
	return nil
}

func invalidSize(w, h int) error {
	return fmt.Errorf("%w: 尺寸无效 %dx%d", sam.ErrInvalidArgument, w, h)
}

// blend 两条路径共用的取整规则: 四舍五入
//
// 显式的 float32 转换阻止编译器融合乘加, 保证两条路径结果一致
func blend(orig uint8, inv, weighted float32) uint8 {
	return uint8(float32(inv*float32(orig)) + weighted + 0.5)
}

func overlayScalar(img image.Image, m sam.Mask, c color.RGBA, alpha float64) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	a := float32(alpha)
	inv := 1 - a

	for y := 0; y < h; y++ {
		my := SampleIndex(y, h, m.Height)
		for x := 0; x < w; x++ {
			mx := SampleIndex(x, w, m.Width)
			if !Positive(m.At(mx, my)) {
				continue
			}
			i := y*dst.Stride + x*4
			dst.Pix[i] = blend(dst.Pix[i], inv, a*float32(c.R))
			dst.Pix[i+1] = blend(dst.Pix[i+1], inv, a*float32(c.G))
			dst.Pix[i+2] = blend(dst.Pix[i+2], inv, a*float32(c.B))
		}
	}
	return dst
}

// overlayParallel 任一 worker 失败时返回错误, 不返回写了一半的图片
func overlayParallel(img image.Image, m sam.Mask, c color.RGBA, alpha float64, workers int) (*image.NRGBA, error) {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	// 预先计算 alpha*color
	a := float32(alpha)
	inv := 1 - a
	wr, wg, wb := a*float32(c.R), a*float32(c.G), a*float32(c.B)
	xIdx := sampleTable(w, m.Width)

	workers = max(1, min(workers, h))
	rows := (h + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < h; start += rows {
		end := min(start+rows, h)
		g.Go(func() error {
			// 每个 worker 只写自己的行
			for y := start; y < end; y++ {
				my := SampleIndex(y, h, m.Height)
				if (my+1)*m.Width > len(m.Logits) {
					return fmt.Errorf("%w: Mask 第 %d 行越界", sam.ErrInvalidArgument, my)
				}
				logits := m.Logits[my*m.Width : (my+1)*m.Width]
				row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
				for x := 0; x < w; x++ {
					if !Positive(logits[xIdx[x]]) {
						continue
					}
					i := x * 4
					row[i] = blend(row[i], inv, wr)
					row[i+1] = blend(row[i+1], inv, wg)
					row[i+2] = blend(row[i+2], inv, wb)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dst, nil
}
