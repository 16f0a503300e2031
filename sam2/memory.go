package sam2

import (
	"slices"

	"github.com/getcharzp/go-sam"
)

// FrameMemory 某个目标在某一帧的解码结果
type FrameMemory struct {
	Mask        sam.Mask
	Score       float32
	ObjectScore float32 // object_score_logits, <= 0 表示目标不在画面中
}

// Memory 视频分割的时序记忆
//
// 目标编号 -> 帧序号 -> 记忆, 以及最近一次编码的帧特征. 非并发安全, 由 Engine 加锁
type Memory struct {
	maxFrames int
	objects   map[int]*objectMemory

	frameIndex int
	frameKey   string
	embeddings []*sam.Tensor
}

// NewMemory 创建时序记忆
//
// # Params:
//
//	maxFrames: 每个目标保留的帧数, 超出时淘汰最早的帧
func NewMemory(maxFrames int) *Memory {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxMemoryFrames
	}
	return &Memory{
		maxFrames: maxFrames,
		objects:   make(map[int]*objectMemory),
	}
}

// objectMemory 单个目标的帧记忆, order 按写入先后排列
type objectMemory struct {
	frames map[int]FrameMemory
	order  []int
}

// Store 保存目标在某一帧的结果, 超出上限时淘汰最早写入的帧
//
// 重复写入同一帧视为最新写入
func (m *Memory) Store(objectID, frameIndex int, fm FrameMemory) {
	obj, ok := m.objects[objectID]
	if !ok {
		obj = &objectMemory{frames: make(map[int]FrameMemory)}
		m.objects[objectID] = obj
	}
	if _, ok := obj.frames[frameIndex]; ok {
		obj.order = slices.DeleteFunc(obj.order, func(f int) bool { return f == frameIndex })
	}
	obj.frames[frameIndex] = fm
	obj.order = append(obj.order, frameIndex)

	for len(obj.order) > m.maxFrames {
		delete(obj.frames, obj.order[0])
		obj.order = obj.order[1:]
	}
}

// Get 读取目标在某一帧的结果
func (m *Memory) Get(objectID, frameIndex int) (FrameMemory, bool) {
	obj, ok := m.objects[objectID]
	if !ok {
		return FrameMemory{}, false
	}
	fm, ok := obj.frames[frameIndex]
	return fm, ok
}

// Nearest 离 frameIndex 最近且目标在画面中的帧, 距离相同时取较早的帧
func (m *Memory) Nearest(objectID, frameIndex int) (int, FrameMemory, bool) {
	best := -1
	for _, f := range m.frames(objectID) {
		if fm, _ := m.Get(objectID, f); fm.ObjectScore <= 0 {
			continue
		}
		if best < 0 || distance(f, frameIndex) < distance(best, frameIndex) {
			best = f
		}
	}
	if best < 0 {
		return 0, FrameMemory{}, false
	}
	return best, m.objects[objectID].frames[best], true
}

// Frames 目标已记忆的帧序号 (升序)
func (m *Memory) Frames(objectID int) []int {
	return m.frames(objectID)
}

func (m *Memory) frames(objectID int) []int {
	obj, ok := m.objects[objectID]
	if !ok {
		return nil
	}
	frames := slices.Clone(obj.order)
	slices.Sort(frames)
	return frames
}

// Objects 已记忆的目标数量
func (m *Memory) Objects() int {
	return len(m.objects)
}

// Embeddings 读取帧特征, 帧序号和图片内容都一致时命中
func (m *Memory) Embeddings(frameIndex int, key string) ([]*sam.Tensor, bool) {
	if m.embeddings == nil || m.frameIndex != frameIndex || m.frameKey != key {
		return nil, false
	}
	return m.embeddings, true
}

// SetEmbeddings 保存当前帧特征, 只保留一帧
func (m *Memory) SetEmbeddings(frameIndex int, key string, embeddings []*sam.Tensor) {
	m.frameIndex = frameIndex
	m.frameKey = key
	m.embeddings = embeddings
}

// Clear 清空全部记忆
func (m *Memory) Clear() {
	clear(m.objects)
	m.embeddings = nil
	m.frameKey = ""
	m.frameIndex = 0
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
