package sam2

import (
	"testing"

	"github.com/getcharzp/go-sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_StoreAndEvict(t *testing.T) {
	m := NewMemory(3)
	for f := 0; f < 5; f++ {
		m.Store(1, f, FrameMemory{Score: float32(f), ObjectScore: 1})
	}
	assert.Equal(t, []int{2, 3, 4}, m.Frames(1))
	_, ok := m.Get(1, 0)
	assert.False(t, ok)

	fm, ok := m.Get(1, 4)
	require.True(t, ok)
	assert.Equal(t, float32(4), fm.Score)
	assert.Equal(t, 1, m.Objects())

	// 覆盖同一帧不会淘汰其他帧
	m.Store(1, 4, FrameMemory{Score: 9, ObjectScore: 1})
	assert.Equal(t, []int{2, 3, 4}, m.Frames(1))
}

func TestMemory_EvictByInsertOrder(t *testing.T) {
	m := NewMemory(7)
	// 倒序播放时最早写入的是序号最大的帧
	for f := 9; f >= 2; f-- {
		m.Store(1, f, FrameMemory{Score: float32(f), ObjectScore: 1})
	}
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8}, m.Frames(1))
	_, ok := m.Get(1, 2)
	assert.True(t, ok)
	_, ok = m.Get(1, 9)
	assert.False(t, ok)

	f, _, ok := m.Nearest(1, 1)
	require.True(t, ok)
	assert.Equal(t, 2, f)

	// 重新写入的帧最后淘汰
	m.Store(1, 8, FrameMemory{Score: 80, ObjectScore: 1})
	m.Store(1, 1, FrameMemory{Score: 1, ObjectScore: 1})
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 8}, m.Frames(1))
}

func TestMemory_Nearest(t *testing.T) {
	m := NewMemory(0)
	_, _, ok := m.Nearest(1, 5)
	assert.False(t, ok)

	m.Store(1, 2, FrameMemory{Score: 2, ObjectScore: 1})
	m.Store(1, 8, FrameMemory{Score: 8, ObjectScore: 1})
	m.Store(1, 6, FrameMemory{Score: 6, ObjectScore: -3}) // 目标不在画面中
	m.Store(2, 5, FrameMemory{Score: 5, ObjectScore: 1})

	f, fm, ok := m.Nearest(1, 5)
	require.True(t, ok)
	// 2 和 8 距离相同, 取较早的帧
	assert.Equal(t, 2, f)
	assert.Equal(t, float32(2), fm.Score)

	f, _, ok = m.Nearest(1, 7)
	require.True(t, ok)
	assert.Equal(t, 8, f)
}

func TestMemory_EmbeddingsAndClear(t *testing.T) {
	m := NewMemory(2)
	emb := []*sam.Tensor{sam.NewFloat32Tensor([]float32{1}, 1)}

	m.SetEmbeddings(3, "abc", emb)
	got, ok := m.Embeddings(3, "abc")
	require.True(t, ok)
	assert.Same(t, emb[0], got[0])

	_, ok = m.Embeddings(3, "other")
	assert.False(t, ok)
	_, ok = m.Embeddings(4, "abc")
	assert.False(t, ok)

	m.Store(1, 3, FrameMemory{ObjectScore: 1})
	m.Clear()
	assert.Zero(t, m.Objects())
	_, ok = m.Embeddings(3, "abc")
	assert.False(t, ok)
}
