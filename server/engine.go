package server

import (
	"fmt"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/config"
	"github.com/getcharzp/go-sam/mobilesam"
	"github.com/getcharzp/go-sam/sam2"
	"github.com/up-zero/gotool/convertutil"
)

// NewSegmenter 按模型类型创建推理引擎
func NewSegmenter(cfg config.ModelConfig) (sam.Segmenter, error) {
	if cfg.OnnxRuntimeLibPath == "" {
		cfg.OnnxRuntimeLibPath = sam.DefaultLibraryPath()
	}

	switch cfg.Family {
	case config.ModelMobileSAM:
		engineConfig := mobilesam.DefaultConfig()
		if err := convertutil.CopyProperties(cfg, &engineConfig); err != nil {
			return nil, fmt.Errorf("复制参数失败: %w", err)
		}
		engine, err := mobilesam.NewEngine(engineConfig)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case config.ModelSAM2:
		engineConfig := sam2.DefaultConfig()
		if err := convertutil.CopyProperties(cfg, &engineConfig); err != nil {
			return nil, fmt.Errorf("复制参数失败: %w", err)
		}
		engine, err := sam2.NewEngine(engineConfig)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("%w: 不支持的模型类型 %q", sam.ErrInvalidArgument, cfg.Family)
	}
}
