package sam

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Tensor 推理输入输出张量, 数据由 Go 持有
//
// Float32 和 Int64 只有一个非空
type Tensor struct {
	Shape   []int64
	Float32 []float32
	Int64   []int64
}

// NewFloat32Tensor 创建 float32 张量
func NewFloat32Tensor(data []float32, shape ...int64) *Tensor {
	return &Tensor{Shape: shape, Float32: data}
}

// NewInt64Tensor 创建 int64 张量
func NewInt64Tensor(data []int64, shape ...int64) *Tensor {
	return &Tensor{Shape: shape, Int64: data}
}

// Elements 形状对应的元素个数
func (t *Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Len 实际数据长度
func (t *Tensor) Len() int {
	if t.Int64 != nil {
		return len(t.Int64)
	}
	return len(t.Float32)
}

// Validate 检查形状与数据长度是否一致
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: 张量为空", ErrInvalidArgument)
	}
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: 形状 %v 含负数维度", ErrInvalidArgument, t.Shape)
		}
	}
	if t.Float32 != nil && t.Int64 != nil {
		return fmt.Errorf("%w: 张量同时包含 float32 和 int64 数据", ErrInvalidArgument)
	}
	if t.Elements() != t.Len() {
		return fmt.Errorf("%w: 形状 %v 需要 %d 个元素, 实际 %d", ErrInvalidArgument, t.Shape, t.Elements(), t.Len())
	}
	return nil
}

// Clone 深拷贝
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{Shape: append([]int64(nil), t.Shape...)}
	if t.Float32 != nil {
		c.Float32 = append(make([]float32, 0, len(t.Float32)), t.Float32...)
	}
	if t.Int64 != nil {
		c.Int64 = append(make([]int64, 0, len(t.Int64)), t.Int64...)
	}
	return c
}

// toValue 转换为 onnxruntime 的张量, 数据不会拷贝
func (t *Tensor) toValue() (ort.Value, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	shape := ort.NewShape(t.Shape...)
	if t.Int64 != nil {
		return ort.NewTensor(shape, t.Int64)
	}
	data := t.Float32
	if data == nil {
		// 零元素张量, 如 input_boxes [1,0,4]
		data = []float32{}
	}
	return ort.NewTensor(shape, data)
}

// fromValue 把 onnxruntime 输出拷贝到 Go 内存, 与会话内部缓冲区解耦
func fromValue(v ort.Value) (*Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		src := tv.GetData()
		data := make([]float32, len(src))
		copy(data, src)
		return NewFloat32Tensor(data, tv.GetShape()...), nil
	case *ort.Tensor[int64]:
		src := tv.GetData()
		data := make([]int64, len(src))
		copy(data, src)
		return NewInt64Tensor(data, tv.GetShape()...), nil
	default:
		return nil, fmt.Errorf("不支持的输出类型 %T", v)
	}
}
