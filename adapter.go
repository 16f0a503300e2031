package sam

import (
	"fmt"
	"image"
)

// EncodeImage 预处理图片并运行编码器
//
// # Params:
//
//	s: 编码器会话
//	inputName: 图片输入名称
//	outputNames: 按顺序返回的输出名称
//	img: 原图
func EncodeImage(s Session, inputName string, outputNames []string, img image.Image) ([]*Tensor, error) {
	data, err := Preprocess(img)
	if err != nil {
		return nil, err
	}

	outputs, err := s.Run(map[string]*Tensor{
		inputName: NewFloat32Tensor(data, 1, 3, InputSize, InputSize),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoder: %w", ErrInference, err)
	}

	embeddings := make([]*Tensor, len(outputNames))
	for i, name := range outputNames {
		t, ok := outputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: encoder 缺少输出 %q", ErrInference, name)
		}
		embeddings[i] = t
	}
	return embeddings, nil
}

// DecodeMasks 运行解码器并解析 masks 和 scores
//
// # Params:
//
//	s: 解码器会话
//	inputs: 解码器输入
//	masksName, scoresName: 输出名称
func DecodeMasks(s Session, inputs map[string]*Tensor, masksName, scoresName string) ([]Mask, []float32, map[string]*Tensor, error) {
	outputs, err := s.Run(inputs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: decoder: %w", ErrInference, err)
	}
	masks, scores, err := ParseMasks(outputs[masksName], outputs[scoresName])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: 解析 decoder 输出失败: %w", ErrInference, err)
	}
	return masks, scores, outputs, nil
}

// CheckImage 检查图片是否可用
func CheckImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: 图片为空", ErrInvalidArgument)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("%w: 图片尺寸为 0", ErrInvalidArgument)
	}
	return nil
}
