package sam

import "errors"

var (
	// ErrInvalidArgument 参数无效, 在任何推理之前同步返回
	ErrInvalidArgument = errors.New("参数无效")
	// ErrModelLoad 模型文件不存在、无法解析或输入输出与约定不一致
	ErrModelLoad = errors.New("模型加载失败")
	// ErrBackendUnavailable 没有任何可用的执行提供者
	ErrBackendUnavailable = errors.New("没有可用的执行提供者")
	// ErrInference 推理失败, 原始错误保留在错误链中
	ErrInference = errors.New("推理失败")
	// ErrDisposed 引擎已销毁
	ErrDisposed = errors.New("引擎已销毁")
)
