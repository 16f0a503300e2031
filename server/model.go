package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/getcharzp/go-sam"
)

// segmentForm multipart 表单参数, 图片放在 image 字段
type segmentForm struct {
	// Points JSON 数组 [[x, y, label], ...]
	Points string `form:"points"`
	// Box JSON 数组 [x0, y0, x1, y1]
	Box        string `form:"box"`
	ObjectID   int    `form:"object_id"`
	FrameIndex int    `form:"frame_index,default=-1"` // < 0 表示静态图片
	WithMask   bool   `form:"with_mask"`
}

// prompt 解析为分割提示
func (f segmentForm) prompt() (sam.Prompt, error) {
	p := sam.Prompt{ObjectID: f.ObjectID}
	if f.Points != "" {
		var points [][3]int
		if err := json.Unmarshal([]byte(f.Points), &points); err != nil {
			return p, fmt.Errorf("%w: points 格式错误: %w", sam.ErrInvalidArgument, err)
		}
		for _, pt := range points {
			p.Points = append(p.Points, image.Pt(pt[0], pt[1]))
			p.Labels = append(p.Labels, sam.Label(pt[2]))
		}
	}
	if f.Box != "" {
		var box [4]int
		if err := json.Unmarshal([]byte(f.Box), &box); err != nil {
			return p, fmt.Errorf("%w: box 格式错误: %w", sam.ErrInvalidArgument, err)
		}
		r := image.Rect(box[0], box[1], box[2], box[3])
		p.Box = &r
	}
	return p, p.Validate()
}

type SegmentResult struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	ObjectID   int       `json:"object_id"`
	FrameIndex int       `json:"frame_index"`
	Scores     []float32 `json:"scores"`
	Best       int       `json:"best"`
	Box        [4]int    `json:"box"`  // 最佳 Mask 在原图的外接框
	Area       float64   `json:"area"` // 最佳 Mask 前景占比
	// Mask (可选) 最佳 Mask 的 PNG, base64 编码
	Mask string `json:"mask,omitempty"`
}

type SegmentResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Cached  bool           `json:"cached,omitempty"`
	Data    *SegmentResult `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
