// Package config 服务端与命令行的 YAML 配置
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 模型类型
const (
	ModelMobileSAM = "mobilesam"
	ModelSAM2      = "sam2"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Model  ModelConfig  `mapstructure:"model"`
	Render RenderConfig `mapstructure:"render"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxImageSize int64         `mapstructure:"max_image_size"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ModelConfig 推理引擎参数, 字段含义与 mobilesam.Config / sam2.Config 一致
type ModelConfig struct {
	Family             string   `mapstructure:"family"`
	OnnxRuntimeLibPath string   `mapstructure:"onnxruntime_lib_path"`
	EncodeModelPath    string   `mapstructure:"encode_model_path"`
	DecodeModelPath    string   `mapstructure:"decode_model_path"`
	Providers          []string `mapstructure:"providers"`
	AvailableProviders []string `mapstructure:"available_providers"`
	AllowCPUFallback   bool     `mapstructure:"allow_cpu_fallback"`
	NumThreads         int      `mapstructure:"num_threads"`
	GraphOptimization  string   `mapstructure:"graph_optimization"`
	EmbeddingCacheSize int      `mapstructure:"embedding_cache_size"`
	MaxMemoryFrames    int      `mapstructure:"max_memory_frames"`
}

type RenderConfig struct {
	Alpha    float64 `mapstructure:"alpha"`
	FontPath string  `mapstructure:"font_path"` // 为空时使用内置字体
	FontSize float64 `mapstructure:"font_size"`
	Workers  int     `mapstructure:"workers"`   // 为 0 时由 CPU 核心数决定
}

// Load 从 YAML 文件加载配置, 环境变量 SAM_<SECTION>_<KEY> 优先
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 环境变量覆盖, 如 SAM_MODEL_FAMILY=sam2
	v.SetEnvPrefix("sam")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New 使用默认配置路径加载配置, 失败时返回默认配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default 默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// 只有默认值, 不会失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Model.Family {
	case ModelMobileSAM, ModelSAM2:
	default:
		return fmt.Errorf("不支持的模型类型 %q", c.Model.Family)
	}
	if c.Render.Alpha < 0 || c.Render.Alpha > 1 {
		return fmt.Errorf("render.alpha 必须在 [0, 1] 之间, 实际为 %v", c.Render.Alpha)
	}
	if c.Render.FontSize <= 0 {
		return fmt.Errorf("render.font_size 必须大于 0, 实际为 %v", c.Render.FontSize)
	}
	if c.Model.NumThreads < 0 || c.Model.EmbeddingCacheSize < 0 || c.Model.MaxMemoryFrames < 0 {
		return fmt.Errorf("model 中的数量参数不能为负数")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_image_size", 20*1024*1024)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("model.family", ModelMobileSAM)
	v.SetDefault("model.onnxruntime_lib_path", "")
	v.SetDefault("model.encode_model_path", "./mobilesam_weights/mobile_sam_encoder.onnx")
	v.SetDefault("model.decode_model_path", "./mobilesam_weights/mobile_sam_decoder.onnx")
	v.SetDefault("model.providers", []string{})
	v.SetDefault("model.allow_cpu_fallback", true)
	v.SetDefault("model.num_threads", 0)
	v.SetDefault("model.graph_optimization", "all")
	v.SetDefault("model.embedding_cache_size", 4)
	v.SetDefault("model.max_memory_frames", 7)

	v.SetDefault("render.alpha", 0.5)
	v.SetDefault("render.font_path", "")
	v.SetDefault("render.font_size", 12)
	v.SetDefault("render.workers", 0)
}
