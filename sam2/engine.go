// Package sam2 SAM2 编码/解码分割, 支持视频帧的时序记忆
package sam2

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/mask"
	"github.com/up-zero/gotool/convertutil"
	"go.uber.org/zap"
)

// Engine 持有 ONNX Session 和时序记忆
//
// 同一时间只执行一个 Segment/SegmentFrame
type Engine struct {
	mu             sync.Mutex
	encoderSession sam.Session
	decoderSession sam.Session
	cache          *sam.EmbeddingCache
	memory         *Memory
	config         Config
	destroyed      bool
}

var _ sam.VideoSegmenter = (*Engine)(nil)

// NewEngine 初始化 sam2 引擎
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
	// encoder session
	encSession, err := factory(cfg.EncodeModelPath, encoderInputs, encoderOutputs)
	if err != nil {
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	// decoder session
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
		memory:         NewMemory(cfg.MaxMemoryFrames),
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
	e.memory.Clear()

	var errs []error
	if err := e.encoderSession.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", err))
	}
	if err := e.decoderSession.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", err))
	}
	return errors.Join(errs...)
}

// Segment 分割静态图片, 不读写时序记忆
func (e *Engine) Segment(img image.Image, prompt sam.Prompt) (*sam.Result, error) {
	if err := sam.CheckImage(img); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	enc, err := sam.EncodePrompt(prompt, bounds, sam.InputSize)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, sam.ErrDisposed
	}

	embeddings, err := e.encodeStill(img)
	if err != nil {
		return nil, err
	}
	res, _, err := e.decode(embeddings, enc, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	res.ObjectID = prompt.ObjectID
	return res, nil
}

// SegmentFrame 分割视频帧并更新目标的时序记忆
//
// 提示为空时使用该目标最近一帧记忆的外接框作为提示
//
// # Params:
//
//	img: 当前帧
//	prompt: 点/标签/框, ObjectID 为目标编号
//	frameIndex: 帧序号
func (e *Engine) SegmentFrame(img image.Image, prompt sam.Prompt, frameIndex int) (*sam.Result, error) {
	if err := sam.CheckImage(img); err != nil {
		return nil, err
	}
	if frameIndex < 0 {
		return nil, fmt.Errorf("%w: 帧序号 %d 无效", sam.ErrInvalidArgument, frameIndex)
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, sam.ErrDisposed
	}

	if prompt.Empty() {
		p, err := e.propagate(prompt.ObjectID, frameIndex, bounds)
		if err != nil {
			return nil, err
		}
		prompt = p
	}
	enc, err := sam.EncodePrompt(prompt, bounds, sam.InputSize)
	if err != nil {
		return nil, err
	}

	embeddings, err := e.encodeFrame(img, frameIndex)
	if err != nil {
		return nil, err
	}
	res, objectScore, err := e.decode(embeddings, enc, origW, origH)
	if err != nil {
		return nil, err
	}
	res.FrameIndex = frameIndex
	res.ObjectID = prompt.ObjectID

	if best, score, ok := res.Best(); ok {
		e.memory.Store(prompt.ObjectID, frameIndex, FrameMemory{
			Mask:        best,
			Score:       score,
			ObjectScore: objectScore,
		})
	}
	return res, nil
}

// ClearMemoryCache 清空时序记忆, 切换到新的视频时调用
func (e *Engine) ClearMemoryCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory.Clear()
	sam.Logger().Debug("sam2 memory cleared")
}

// propagate 由最近一帧的记忆生成框提示, 框与 bounds 同一坐标系
func (e *Engine) propagate(objectID, frameIndex int, bounds image.Rectangle) (sam.Prompt, error) {
	from, fm, ok := e.memory.Nearest(objectID, frameIndex)
	if !ok {
		return sam.Prompt{}, fmt.Errorf("%w: 提示为空且目标 %d 没有记忆", sam.ErrInvalidArgument, objectID)
	}
	box, ok := mask.ImageBounds(fm.Mask, bounds.Dx(), bounds.Dy())
	if !ok || box.Empty() {
		return sam.Prompt{}, fmt.Errorf("%w: 目标 %d 在第 %d 帧的 Mask 为空", sam.ErrInvalidArgument, objectID, from)
	}
	sam.Logger().Debug("prompt propagated from memory",
		zap.Int("object_id", objectID),
		zap.Int("from_frame", from),
		zap.Int("to_frame", frameIndex))
	box = box.Add(bounds.Min)
	return sam.Prompt{Box: &box, ObjectID: objectID}, nil
}

// encodeStill 静态图片特征提取, 命中缓存时跳过编码器
func (e *Engine) encodeStill(img image.Image) ([]*sam.Tensor, error) {
	var key string
	if e.cache != nil {
		key = sam.ImageKey(img)
		if embeddings, ok := e.cache.Get(key); ok {
			return embeddings, nil
		}
	}
	embeddings, err := sam.EncodeImage(e.encoderSession, encoderInput, encoderOutputs, img)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, embeddings)
	return embeddings, nil
}

// encodeFrame 视频帧特征提取, 同一帧多次提示时复用
func (e *Engine) encodeFrame(img image.Image, frameIndex int) ([]*sam.Tensor, error) {
	key := sam.ImageKey(img)
	if embeddings, ok := e.memory.Embeddings(frameIndex, key); ok {
		return embeddings, nil
	}
	embeddings, err := sam.EncodeImage(e.encoderSession, encoderInput, encoderOutputs, img)
	if err != nil {
		return nil, err
	}
	e.memory.SetEmbeddings(frameIndex, key, embeddings)
	return embeddings, nil
}

// decode Mask解码, 返回结果和 object score
func (e *Engine) decode(embeddings []*sam.Tensor, enc sam.EncodedPrompt, origW, origH int) (*sam.Result, float32, error) {
	numPoints := int64(enc.NumPoints())

	inputs := map[string]*sam.Tensor{
		decoderPoints: sam.NewFloat32Tensor(enc.Coords, 1, 1, numPoints, 2),
		decoderLabels: sam.NewInt64Tensor(enc.Int64Labels(), 1, 1, numPoints),
		// box 通过 point 控制
		decoderBoxes: sam.NewFloat32Tensor(nil, 1, 0, 4),
	}
	for i, name := range embeddingNames {
		inputs[name] = embeddings[i]
	}

	masks, scores, outputs, err := sam.DecodeMasks(e.decoderSession, inputs, decoderMasks, decoderScores)
	if err != nil {
		return nil, 0, err
	}

	// 没有 object_score_logits 时视为目标存在
	objectScore := float32(1)
	if t, ok := outputs[decoderObjectScore]; ok && len(t.Float32) > 0 {
		objectScore = t.Float32[0]
	}

	return &sam.Result{
		Masks:  masks,
		Scores: scores,
		Width:  origW,
		Height: origH,
	}, objectScore, nil
}
