package sam

import (
	"fmt"
	"os"
	"slices"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Session 推理会话, 输入输出按名称传递
//
// 同一个 Session 不支持并发 Run
type Session interface {
	Run(inputs map[string]*Tensor) (map[string]*Tensor, error)
	Destroy() error
}

// SessionFactory 按模型路径和输入输出名称创建会话
type SessionFactory func(modelPath string, inputNames, outputNames []string) (Session, error)

// ortSession 基于 onnxruntime DynamicAdvancedSession 的会话
type ortSession struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewSessionFactory 创建 onnxruntime 会话工厂
//
// 加载前校验模型文件是否存在, 以及模型声明的输入输出名称是否与约定一致
func (cfg *OnnxConfig) NewSessionFactory() SessionFactory {
	return func(modelPath string, inputNames, outputNames []string) (Session, error) {
		if err := CheckModelFile(modelPath); err != nil {
			return nil, err
		}
		inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: 解析模型 %s 失败: %w", ErrModelLoad, modelPath, err)
		}
		if err := CheckContract(modelPath, ioNames(inputs), ioNames(outputs), inputNames, outputNames); err != nil {
			return nil, err
		}

		session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, cfg.SessionOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: 创建 ONNX 会话失败 %s: %w", ErrModelLoad, modelPath, err)
		}
		Logger().Info("onnx session loaded",
			zap.String("model", modelPath),
			zap.Strings("inputs", inputNames),
			zap.Strings("outputs", outputNames))

		return &ortSession{
			session:     session,
			inputNames:  inputNames,
			outputNames: outputNames,
		}, nil
	}
}

// CheckModelFile 检查模型文件
func CheckModelFile(modelPath string) error {
	if modelPath == "" {
		return fmt.Errorf("%w: 模型路径不能为空", ErrModelLoad)
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s 是目录", ErrModelLoad, modelPath)
	}
	return nil
}

// CheckContract 检查模型的输入输出名称是否包含约定的全部名称
//
// # Params:
//
//	modelPath: 模型路径, 仅用于错误信息
//	modelInputs, modelOutputs: 模型声明的名称
//	wantInputs, wantOutputs: 约定的名称
func CheckContract(modelPath string, modelInputs, modelOutputs, wantInputs, wantOutputs []string) error {
	for _, name := range wantInputs {
		if !slices.Contains(modelInputs, name) {
			return fmt.Errorf("%w: %s 缺少输入 %q, 模型输入为 %v", ErrModelLoad, modelPath, name, modelInputs)
		}
	}
	for _, name := range wantOutputs {
		if !slices.Contains(modelOutputs, name) {
			return fmt.Errorf("%w: %s 缺少输出 %q, 模型输出为 %v", ErrModelLoad, modelPath, name, modelOutputs)
		}
	}
	if len(modelInputs) != len(wantInputs) {
		return fmt.Errorf("%w: %s 输入数量为 %d, 约定为 %d", ErrModelLoad, modelPath, len(modelInputs), len(wantInputs))
	}
	return nil
}

func ioNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// Run 执行推理, 输出拷贝到 Go 内存后立即释放 onnxruntime 的输出
func (s *ortSession) Run(inputs map[string]*Tensor) (map[string]*Tensor, error) {
	values := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()

	for _, name := range s.inputNames {
		t, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: 缺少输入 %q", ErrInvalidArgument, name)
		}
		v, err := t.toValue()
		if err != nil {
			return nil, fmt.Errorf("创建 Input Tensor %q 失败: %w", name, err)
		}
		values = append(values, v)
	}

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run(values, outputs); err != nil {
		return nil, err
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	result := make(map[string]*Tensor, len(outputs))
	for i, o := range outputs {
		t, err := fromValue(o)
		if err != nil {
			return nil, fmt.Errorf("读取输出 %q 失败: %w", s.outputNames[i], err)
		}
		result[s.outputNames[i]] = t
	}
	return result, nil
}

// Destroy 释放会话
func (s *ortSession) Destroy() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
