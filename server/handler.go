// Package server 基于 gin 的分割 HTTP 服务
package server

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/mask"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	segmenter    sam.Segmenter
	renderer     *mask.Renderer
	cache        ResultCache // (可选) 为空时不缓存
	maxImageSize int64
}

// NewHandler 创建处理器
//
// # Params:
//
//	segmenter: 推理引擎
//	renderer: 叠加图渲染器
//	cache: (可选) 结果缓存
//	maxImageSize: 上传图片大小上限, <= 0 表示不限制
func NewHandler(segmenter sam.Segmenter, renderer *mask.Renderer, cache ResultCache, maxImageSize int64) *Handler {
	return &Handler{
		segmenter:    segmenter,
		renderer:     renderer,
		cache:        cache,
		maxImageSize: maxImageSize,
	}
}

// Router 注册路由
func (h *Handler) Router(version string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version,
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/segment", h.Segment)
		api.POST("/overlay", h.Overlay)
		api.DELETE("/memory", h.ClearMemory)
	}
	return r
}

// Segment 返回分割结果 JSON
func (h *Handler) Segment(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	// 视频帧依赖时序记忆, 不走缓存
	useCache := h.cache != nil && req.form.FrameIndex < 0
	ctx := context.Background()
	if useCache {
		cached, err := h.cache.Get(ctx, req.key)
		if err != nil {
			sam.Logger().Warn("failed to get cache", zap.Error(err))
		}
		if cached != nil {
			sam.Logger().Info("cache hit", zap.String("cache_key", req.key))
			c.JSON(http.StatusOK, SegmentResponse{
				Success: true,
				Message: "分割成功 (来自缓存)",
				Cached:  true,
				Data:    cached,
			})
			return
		}
	}

	res, ok := h.segment(c, req)
	if !ok {
		return
	}
	data, err := summarize(res, req.form.WithMask)
	if err != nil {
		abort(c, err)
		return
	}

	if useCache {
		if err := h.cache.Set(ctx, req.key, data); err != nil {
			sam.Logger().Warn("failed to set cache", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, SegmentResponse{
		Success: true,
		Message: "分割成功",
		Data:    data,
	})
}

// Overlay 返回叠加了最佳 Mask 的 PNG
func (h *Handler) Overlay(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	res, ok := h.segment(c, req)
	if !ok {
		return
	}

	out, err := h.renderer.Render(req.img, res)
	if err != nil {
		abort(c, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ClearMemory 清空视频时序记忆
func (h *Handler) ClearMemory(c *gin.Context) {
	vs, ok := h.segmenter.(sam.VideoSegmenter)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Message: "当前模型不支持视频分割",
		})
		return
	}
	vs.ClearMemoryCache()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "记忆已清空"})
}

type segmentRequest struct {
	form   segmentForm
	prompt sam.Prompt
	img    image.Image
	key    string // 图片内容和提示的 MD5
}

// bind 解析图片和提示, 失败时已写入响应
func (h *Handler) bind(c *gin.Context) (*segmentRequest, bool) {
	req := new(segmentRequest)
	if err := c.ShouldBind(&req.form); err != nil {
		abort(c, fmt.Errorf("%w: %w", sam.ErrInvalidArgument, err))
		return nil, false
	}
	prompt, err := req.form.prompt()
	if err != nil {
		abort(c, err)
		return nil, false
	}
	req.prompt = prompt

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return nil, false
	}
	if h.maxImageSize > 0 && file.Size > h.maxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.maxImageSize/(1024*1024)),
		})
		return nil, false
	}

	f, err := file.Open()
	if err != nil {
		abort(c, err)
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		abort(c, err)
		return nil, false
	}
	req.img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		abort(c, fmt.Errorf("%w: 图片解码失败: %w", sam.ErrInvalidArgument, err))
		return nil, false
	}

	hash := md5.New()
	hash.Write(data)
	fmt.Fprintf(hash, "|%s|%s|%d|%t", req.form.Points, req.form.Box, req.form.ObjectID, req.form.WithMask)
	req.key = hex.EncodeToString(hash.Sum(nil))
	return req, true
}

func (h *Handler) segment(c *gin.Context, req *segmentRequest) (*sam.Result, bool) {
	var (
		res *sam.Result
		err error
	)
	if req.form.FrameIndex >= 0 {
		vs, ok := h.segmenter.(sam.VideoSegmenter)
		if !ok {
			abort(c, fmt.Errorf("%w: 当前模型不支持视频分割", sam.ErrInvalidArgument))
			return nil, false
		}
		res, err = vs.SegmentFrame(req.img, req.prompt, req.form.FrameIndex)
	} else {
		res, err = h.segmenter.Segment(req.img, req.prompt)
	}
	if err != nil {
		sam.Logger().Error("failed to segment image", zap.Error(err))
		abort(c, err)
		return nil, false
	}
	return res, true
}

// summarize 提取最佳 Mask 的外接框和占比
func summarize(res *sam.Result, withMask bool) (*SegmentResult, error) {
	out := &SegmentResult{
		Width:      res.Width,
		Height:     res.Height,
		ObjectID:   res.ObjectID,
		FrameIndex: res.FrameIndex,
		Scores:     res.Scores,
		Best:       sam.BestIndex(res.Scores),
	}
	best, _, ok := res.Best()
	if !ok {
		return out, nil
	}
	if box, ok := mask.ImageBounds(best, res.Width, res.Height); ok {
		out.Box = [4]int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y}
	}
	out.Area = mask.Area(best)

	if withMask {
		gray, err := mask.Binarize(best, res.Width, res.Height)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, gray); err != nil {
			return nil, err
		}
		out.Mask = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	return out, nil
}

// abort 按错误类型返回状态码
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "分割失败"
	switch {
	case errors.Is(err, sam.ErrInvalidArgument):
		status, message = http.StatusBadRequest, "参数错误"
	case errors.Is(err, sam.ErrDisposed), errors.Is(err, sam.ErrBackendUnavailable):
		status, message = http.StatusServiceUnavailable, "推理引擎不可用"
	case errors.Is(err, sam.ErrInference):
		message = "推理失败"
	}
	c.JSON(status, ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
