// Package samtest 测试用的推理会话
package samtest

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getcharzp/go-sam"
)

// Session 记录调用的假会话
type Session struct {
	// RunFunc 返回推理结果, 为空时返回空结果
	RunFunc func(inputs map[string]*sam.Tensor) (map[string]*sam.Tensor, error)
	// Delay 每次 Run 的耗时, 用于并发测试
	Delay time.Duration

	mu          sync.Mutex
	calls       int
	inputs      []map[string]*sam.Tensor
	destroyed   bool
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// Run 记录输入并调用 RunFunc
func (s *Session) Run(inputs map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, errors.New("session destroyed")
	}
	s.calls++
	s.inputs = append(s.inputs, inputs)
	s.mu.Unlock()

	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.RunFunc == nil {
		return map[string]*sam.Tensor{}, nil
	}
	return s.RunFunc(inputs)
}

// Destroy 标记为已销毁
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	return nil
}

// Calls Run 被调用的次数
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastInputs 最后一次 Run 的输入
func (s *Session) LastInputs() map[string]*sam.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return nil
	}
	return s.inputs[len(s.inputs)-1]
}

// Destroyed 是否已销毁
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// MaxInFlight 同时执行的 Run 数量峰值
func (s *Session) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

// Factory 按模型路径返回对应的假会话, 并检查输入输出名称
//
// # Params:
//
//	sessions: 模型路径 -> 会话
//	contracts: 模型路径 -> 模型声明的输入输出名称, 为空时不检查
func Factory(sessions map[string]*Session, contracts map[string]Contract) sam.SessionFactory {
	return func(modelPath string, inputNames, outputNames []string) (sam.Session, error) {
		s, ok := sessions[modelPath]
		if !ok {
			return nil, fmt.Errorf("%w: %s 不存在", sam.ErrModelLoad, modelPath)
		}
		if c, ok := contracts[modelPath]; ok {
			if err := sam.CheckContract(modelPath, c.Inputs, c.Outputs, inputNames, outputNames); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
}

// Contract 模型声明的输入输出名称
type Contract struct {
	Inputs  []string
	Outputs []string
}

// Embeddings 返回给定名称的全零特征
func Embeddings(names ...string) func(map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
	return func(map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
		out := make(map[string]*sam.Tensor, len(names))
		for _, name := range names {
			out[name] = sam.NewFloat32Tensor(make([]float32, 4*8*8), 1, 4, 8, 8)
		}
		return out, nil
	}
}

// MaskOutputs 构造解码器输出
//
// # Params:
//
//	shape: masks 的形状, 最后两维为 H, W
//	scores: 每个 Mask 的分数
//	logit: 第 i 个 Mask 在 (x, y) 的 logit
func MaskOutputs(masksName, scoresName string, shape []int64, scores []float32, logit func(i, x, y int) float32) map[string]*sam.Tensor {
	h, w := int(shape[len(shape)-2]), int(shape[len(shape)-1])
	data := make([]float32, len(scores)*h*w)
	for i := range scores {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[i*h*w+y*w+x] = logit(i, x, y)
			}
		}
	}
	scoreShape := slices.Clone(shape[:len(shape)-2])
	return map[string]*sam.Tensor{
		masksName:  sam.NewFloat32Tensor(data, shape...),
		scoresName: sam.NewFloat32Tensor(slices.Clone(scores), scoreShape...),
	}
}
