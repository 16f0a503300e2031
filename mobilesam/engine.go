// Package mobilesam MobileSAM 单次编码/解码分割
package mobilesam

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/getcharzp/go-sam"
	"github.com/up-zero/gotool/convertutil"
	"go.uber.org/zap"
)

// Engine 持有编码器和解码器会话
//
// 同一时间只执行一个 Segment
type Engine struct {
	mu             sync.Mutex
	encoderSession sam.Session
	decoderSession sam.Session
	cache          *sam.EmbeddingCache
	config         Config
	destroyed      bool
}

var _ sam.Segmenter = (*Engine)(nil)

// NewEngine 初始化 MobileSAM 引擎
func NewEngine(cfg Config) (*Engine, error) {
	onnxConfig := new(sam.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}
	defer onnxConfig.Destroy()

	return newEngine(cfg, onnxConfig.NewSessionFactory())
}

func newEngine(cfg Config, factory sam.SessionFactory) (*Engine, error) {
	encSession, err := factory(cfg.EncodeModelPath, encoderInputs, encoderOutputs)
	if err != nil {
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	decSession, err := factory(cfg.DecodeModelPath, decoderInputs, decoderOutputs)
	if err != nil {
		encSession.Destroy()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	cache, err := sam.NewEmbeddingCache(cfg.EmbeddingCacheSize)
	if err != nil {
		encSession.Destroy()
		decSession.Destroy()
		return nil, fmt.Errorf("创建特征缓存失败: %w", err)
	}

	return &Engine{
		encoderSession: encSession,
		decoderSession: decSession,
		cache:          cache,
		config:         cfg,
	}, nil
}

// Destroy 释放相关资源, 重复调用无副作用
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return nil
	}
	e.destroyed = true
	e.cache.Purge()

	var errs []error
	if err := e.encoderSession.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", err))
	}
	if err := e.decoderSession.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", err))
	}
	return errors.Join(errs...)
}

// Segment 按提示分割图片
//
// # Params:
//
//	img: 原图
//	prompt: 点/标签/框
func (e *Engine) Segment(img image.Image, prompt sam.Prompt) (*sam.Result, error) {
	if err := sam.CheckImage(img); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	// 坐标转换, 参数错误时不会调用模型
	enc, err := sam.EncodePrompt(prompt, bounds, sam.InputSize)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, sam.ErrDisposed
	}

	embeddings, err := e.encode(img)
	if err != nil {
		return nil, err
	}

	numPoints := int64(enc.NumPoints())
	inputs := map[string]*sam.Tensor{
		decoderEmbeddings:   embeddings[0],
		decoderPointCoords:  sam.NewFloat32Tensor(enc.Coords, 1, numPoints, 2),
		decoderPointLabels:  sam.NewFloat32Tensor(enc.Labels, 1, numPoints),
		decoderMaskInput:    sam.NewFloat32Tensor(make([]float32, maskInputSize*maskInputSize), 1, 1, maskInputSize, maskInputSize),
		decoderHasMaskInput: sam.NewFloat32Tensor([]float32{0}, 1),
	}
	masks, scores, _, err := sam.DecodeMasks(e.decoderSession, inputs, decoderMasks, decoderScores)
	if err != nil {
		return nil, err
	}

	return &sam.Result{
		Masks:    masks,
		Scores:   scores,
		Width:    origW,
		Height:   origH,
		ObjectID: prompt.ObjectID,
	}, nil
}

// encode 图像特征提取, 命中缓存时跳过编码器
func (e *Engine) encode(img image.Image) ([]*sam.Tensor, error) {
	var key string
	if e.cache != nil {
		key = sam.ImageKey(img)
		if embeddings, ok := e.cache.Get(key); ok {
			sam.Logger().Debug("embedding cache hit", zap.String("key", key))
			return embeddings, nil
		}
	}

	embeddings, err := sam.EncodeImage(e.encoderSession, encoderInput, encoderOutputs, img)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(key, embeddings)
	}
	return embeddings, nil
}
