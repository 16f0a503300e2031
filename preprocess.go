package sam

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// InputSize 模型输入边长
const InputSize = 1024

// 均值和方差常量 (像素先除以 255)
const (
	MeanR = 0.485
	MeanG = 0.456
	MeanB = 0.406

	StdR = 0.229
	StdG = 0.224
	StdB = 0.225
)

// Preprocess 把图片转换为 [1,3,1024,1024] 的归一化数据
func Preprocess(img image.Image) ([]float32, error) {
	return PreprocessSize(img, InputSize)
}

// PreprocessSize 直接拉伸到 size x size (不保持宽高比), 归一化后按 CHW 排列
//
// # Params:
//
//	img: 原图
//	size: 模型输入边长
func PreprocessSize(img image.Image, size int) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: 图片为空", ErrInvalidArgument)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: 图片尺寸为 0", ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: 输入尺寸 %d 无效", ErrInvalidArgument, size)
	}

	resized := imaging.Resize(img, size, size, imaging.CatmullRom)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+size*4]
		for x := 0; x < size; x++ {
			r := float32(row[x*4]) / 255.0
			g := float32(row[x*4+1]) / 255.0
			b := float32(row[x*4+2]) / 255.0

			// 目标索引 (CHW)
			idx := y*size + x
			data[idx] = (r - MeanR) / StdR
			data[plane+idx] = (g - MeanG) / StdG
			data[2*plane+idx] = (b - MeanB) / StdB
		}
	}
	return data, nil
}
