package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/config"
	"github.com/getcharzp/go-sam/mask"
	"github.com/getcharzp/go-sam/server"
	"github.com/up-zero/gotool/imageutil"
	"go.uber.org/zap"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML 配置文件, 命令行参数优先",
	}
	modelFlag = cli.StringFlag{
		Name:  "model",
		Usage: "模型类型 mobilesam|sam2",
	}
	encoderFlag = cli.StringFlag{
		Name:  "encoder",
		Usage: "图片特征提取模型路径",
	}
	decoderFlag = cli.StringFlag{
		Name:  "decoder",
		Usage: "Mask解码模型路径",
	}
	libFlag = cli.StringFlag{
		Name:  "lib",
		Usage: "onnxruntime 动态库路径",
	}
	providerFlag = cli.StringSliceFlag{
		Name:  "provider",
		Usage: "执行提供者优先顺序, 可重复, 如 --provider cuda --provider cpu",
	}
	threadsFlag = cli.IntFlag{
		Name:  "threads",
		Usage: "ONNX 线程数, 0 表示自动",
	}
	inputFlag = cli.StringFlag{
		Name:  "input, i",
		Usage: "输入图片",
	}
	pointFlag = cli.StringSliceFlag{
		Name:  "point, p",
		Usage: "提示点 x,y[,label], label 默认 1 (前景), 0 为背景",
	}
	boxFlag = cli.StringFlag{
		Name:  "box, b",
		Usage: "框选提示 x0,y0,x1,y1",
	}
	maskOutFlag = cli.StringFlag{
		Name:  "mask-out",
		Usage: "二值 Mask 输出路径",
		Value: "mask.png",
	}
	overlayOutFlag = cli.StringFlag{
		Name:  "overlay-out",
		Usage: "叠加图输出路径",
		Value: "overlay.png",
	}
	alphaFlag = cli.Float64Flag{
		Name:  "alpha",
		Usage: "叠加透明度 [0, 1]",
		Value: 0.5,
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "输出调试日志",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "samseg"
	app.Usage = "基于 SAM2 / MobileSAM 的提示分割"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		configFlag, modelFlag, encoderFlag, decoderFlag, libFlag, providerFlag, threadsFlag,
		inputFlag, pointFlag, boxFlag, maskOutFlag, overlayOutFlag, alphaFlag, verboseFlag,
	}
	app.Action = segment

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func segment(ctx *cli.Context) error {
	if ctx.Bool(verboseFlag.Name) {
		logger, err := sam.NewLogger("debug")
		if err != nil {
			return err
		}
		sam.SetLogger(logger)
		defer logger.Sync()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	prompt, err := parsePrompt(ctx.StringSlice("point"), ctx.String("box"))
	if err != nil {
		return err
	}
	if ctx.String("input") == "" {
		return fmt.Errorf("缺少输入图片 --input")
	}

	img, err := imageutil.Open(ctx.String("input"))
	if err != nil {
		return fmt.Errorf("打开图片失败: %w", err)
	}

	segmenter, err := server.NewSegmenter(cfg.Model)
	if err != nil {
		return err
	}
	defer segmenter.Destroy()

	res, err := segmenter.Segment(img, prompt)
	if err != nil {
		return err
	}
	best, score, ok := res.Best()
	if !ok {
		return fmt.Errorf("模型没有输出 Mask")
	}
	sam.Logger().Info("segmented",
		zap.Float32s("scores", res.Scores),
		zap.Float32("best_score", score),
		zap.Float64("area", mask.Area(best)))

	binary, err := mask.Binarize(best, res.Width, res.Height)
	if err != nil {
		return err
	}
	if err := imageutil.Save(ctx.String(maskOutFlag.Name), binary, 100); err != nil {
		return fmt.Errorf("保存 Mask 失败: %w", err)
	}

	drawer, err := sam.NewLabelDrawer(cfg.Render.FontPath, cfg.Render.FontSize)
	if err != nil {
		return err
	}
	defer drawer.Close()
	renderer := mask.NewRenderer(drawer)
	renderer.Alpha = cfg.Render.Alpha
	out, err := renderer.Render(img, res)
	if err != nil {
		return err
	}
	if err := imageutil.Save(ctx.String(overlayOutFlag.Name), drawPrompt(out, prompt), 100); err != nil {
		return fmt.Errorf("保存叠加图失败: %w", err)
	}

	fmt.Printf("score: %.4f, mask: %s, overlay: %s\n", score,
		ctx.String(maskOutFlag.Name), ctx.String(overlayOutFlag.Name))
	return nil
}

// loadConfig 配置文件 + 命令行参数
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := ctx.String(modelFlag.Name); v != "" {
		cfg.Model.Family = v
		if v == config.ModelSAM2 && !ctx.IsSet(encoderFlag.Name) {
			cfg.Model.EncodeModelPath = "./sam2_weights/vision_encoder.onnx"
			cfg.Model.DecodeModelPath = "./sam2_weights/prompt_encoder_mask_decoder.onnx"
		}
	}
	if v := ctx.String(encoderFlag.Name); v != "" {
		cfg.Model.EncodeModelPath = v
	}
	if v := ctx.String(decoderFlag.Name); v != "" {
		cfg.Model.DecodeModelPath = v
	}
	if v := ctx.String(libFlag.Name); v != "" {
		cfg.Model.OnnxRuntimeLibPath = v
	}
	if v := ctx.StringSlice(providerFlag.Name); len(v) > 0 {
		cfg.Model.Providers = v
	}
	if ctx.IsSet(threadsFlag.Name) {
		cfg.Model.NumThreads = ctx.Int(threadsFlag.Name)
	}
	if ctx.IsSet(alphaFlag.Name) {
		cfg.Render.Alpha = ctx.Float64(alphaFlag.Name)
	}
	// 单张图片不需要缓存特征
	cfg.Model.EmbeddingCacheSize = 0
	return cfg, cfg.Validate()
}

// parsePrompt 解析 x,y[,label] 和 x0,y0,x1,y1
func parsePrompt(points []string, box string) (sam.Prompt, error) {
	var p sam.Prompt
	for _, s := range points {
		v, err := parseInts(s)
		if err != nil || (len(v) != 2 && len(v) != 3) {
			return p, fmt.Errorf("%w: 提示点 %q 格式应为 x,y[,label]", sam.ErrInvalidArgument, s)
		}
		label := sam.LabelForeground
		if len(v) == 3 {
			label = sam.Label(v[2])
		}
		p.Points = append(p.Points, image.Pt(v[0], v[1]))
		p.Labels = append(p.Labels, label)
	}
	if box != "" {
		v, err := parseInts(box)
		if err != nil || len(v) != 4 {
			return p, fmt.Errorf("%w: 框选 %q 格式应为 x0,y0,x1,y1", sam.ErrInvalidArgument, box)
		}
		r := image.Rect(v[0], v[1], v[2], v[3])
		p.Box = &r
	}
	if p.Empty() {
		return p, fmt.Errorf("%w: 至少需要一个 --point 或 --box", sam.ErrInvalidArgument)
	}
	return p, p.Validate()
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// drawPrompt 在叠加图上标出提示点和框
func drawPrompt(img image.Image, p sam.Prompt) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, img.Bounds(), img, img.Bounds().Min, draw.Src)

	if p.Box != nil {
		imageutil.DrawThickRectOutline(dst, p.Box.Canon(), color.RGBA{R: 255, A: 255}, 3)
	}
	for i, pt := range p.Points {
		c := color.RGBA{G: 255, A: 255} // 前景
		if p.Labels[i] == sam.LabelBackground {
			c = color.RGBA{R: 255, A: 255}
		}
		imageutil.DrawFilledCircle(dst, pt, 6, c)
	}
	return dst
}
