package mobilesam

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/samtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	encPath = "enc.onnx"
	decPath = "dec.onnx"
)

type fixture struct {
	engine  *Engine
	encoder *samtest.Session
	decoder *samtest.Session
}

func newFixture(t *testing.T, cacheSize int, scores []float32) *fixture {
	t.Helper()
	f := &fixture{
		encoder: &samtest.Session{RunFunc: samtest.Embeddings(encoderOutput)},
		decoder: &samtest.Session{},
	}
	f.decoder.RunFunc = func(map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
		return samtest.MaskOutputs(decoderMasks, decoderScores, []int64{1, int64(len(scores)), 16, 16}, scores,
			func(i, x, y int) float32 {
				if x < 8 {
					return float32(i + 1)
				}
				return -1
			}), nil
	}

	cfg := DefaultConfig()
	cfg.EncodeModelPath = encPath
	cfg.DecodeModelPath = decPath
	cfg.EmbeddingCacheSize = cacheSize

	engine, err := newEngine(cfg, samtest.Factory(map[string]*samtest.Session{
		encPath: f.encoder,
		decPath: f.decoder,
	}, map[string]samtest.Contract{
		encPath: {Inputs: encoderInputs, Outputs: encoderOutputs},
		decPath: {Inputs: decoderInputs, Outputs: decoderOutputs},
	}))
	require.NoError(t, err)
	f.engine = engine
	t.Cleanup(func() { engine.Destroy() })
	return f
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return img
}

func TestEngine_Segment(t *testing.T) {
	f := newFixture(t, 0, []float32{0.2, 0.9, 0.9})

	box := image.Rect(10, 20, 150, 90)
	prompt := sam.Prompt{
		Points: []image.Point{{X: 50, Y: 40}, {X: 0, Y: 0}},
		Labels: []sam.Label{sam.LabelForeground, sam.LabelBackground},
		Box:    &box,
	}
	res, err := f.engine.Segment(testImage(200, 100), prompt)
	require.NoError(t, err)

	require.Len(t, res.Masks, 3)
	require.Len(t, res.Scores, 3)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 100, res.Height)
	assert.Equal(t, 0, res.FrameIndex)
	assert.Equal(t, 1, sam.BestIndex(res.Scores))
	assert.Equal(t, 16, res.Masks[0].Width)

	best, score, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, float32(0.9), score)
	assert.Equal(t, float32(2), best.At(0, 0))

	// 解码器输入
	in := f.decoder.LastInputs()
	require.NotNil(t, in)
	assert.Equal(t, []int64{1, 4, 2}, in[decoderPointCoords].Shape)
	assert.Equal(t, []int64{1, 4}, in[decoderPointLabels].Shape)
	assert.Equal(t, []float32{1, 0, 2, 3}, in[decoderPointLabels].Float32)
	assert.InDeltaSlice(t, []float32{
		50 * 1024.0 / 200, 40 * 1024.0 / 100,
		0, 0,
		10 * 1024.0 / 200, 20 * 1024.0 / 100,
		150 * 1024.0 / 200, 90 * 1024.0 / 100,
	}, in[decoderPointCoords].Float32, 1e-3)
	assert.Equal(t, []int64{1, 1, 256, 256}, in[decoderMaskInput].Shape)
	for _, v := range in[decoderMaskInput].Float32 {
		require.Zero(t, v)
	}
	assert.Equal(t, []float32{0}, in[decoderHasMaskInput].Float32)

	// 编码器输入
	encIn := f.encoder.LastInputs()
	assert.Equal(t, []int64{1, 3, sam.InputSize, sam.InputSize}, encIn[encoderInput].Shape)
	assert.Len(t, encIn[encoderInput].Float32, 3*sam.InputSize*sam.InputSize)
}

func TestEngine_SegmentSubImage(t *testing.T) {
	f := newFixture(t, 0, []float32{0.5})

	img := testImage(400, 300).(*image.RGBA).SubImage(image.Rect(100, 100, 300, 200))
	b := img.Bounds()
	box := image.Rect(150, 125, 250, 175)
	res, err := f.engine.Segment(img, sam.Prompt{
		Points: []image.Point{b.Min, b.Max.Sub(image.Pt(1, 1))},
		Labels: []sam.Label{sam.LabelForeground, sam.LabelForeground},
		Box:    &box,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 100, res.Height)

	// 坐标相对子图左上角
	in := f.decoder.LastInputs()
	assert.InDeltaSlice(t, []float32{
		0, 0,
		199 * 1024.0 / 200, 99 * 1024.0 / 100,
		50 * 1024.0 / 200, 25 * 1024.0 / 100,
		150 * 1024.0 / 200, 75 * 1024.0 / 100,
	}, in[decoderPointCoords].Float32, 1e-3)
}

func TestEngine_SegmentInvalidArgument(t *testing.T) {
	f := newFixture(t, 0, []float32{0.5})

	cases := []struct {
		name   string
		img    image.Image
		prompt sam.Prompt
	}{
		{"length mismatch", testImage(10, 10), sam.Prompt{
			Points: []image.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Labels: []sam.Label{sam.LabelForeground},
		}},
		{"empty prompt", testImage(10, 10), sam.Prompt{}},
		{"nil image", nil, sam.Prompt{
			Points: []image.Point{{X: 1, Y: 1}},
			Labels: []sam.Label{sam.LabelForeground},
		}},
		{"bad label", testImage(10, 10), sam.Prompt{
			Points: []image.Point{{X: 1, Y: 1}},
			Labels: []sam.Label{7},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Segment(tc.img, tc.prompt)
			require.ErrorIs(t, err, sam.ErrInvalidArgument)
		})
	}
	assert.Zero(t, f.encoder.Calls())
	assert.Zero(t, f.decoder.Calls())
}

func TestEngine_EmbeddingCache(t *testing.T) {
	f := newFixture(t, 2, []float32{0.5})
	prompt := sam.Prompt{Points: []image.Point{{X: 3, Y: 3}}, Labels: []sam.Label{sam.LabelForeground}}

	img := testImage(32, 32)
	for i := 0; i < 3; i++ {
		_, err := f.engine.Segment(img, prompt)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.encoder.Calls())
	assert.Equal(t, 3, f.decoder.Calls())

	// 不同的图片重新编码
	_, err := f.engine.Segment(testImage(32, 33), prompt)
	require.NoError(t, err)
	assert.Equal(t, 2, f.encoder.Calls())
}

func TestEngine_InferenceFailure(t *testing.T) {
	f := newFixture(t, 0, []float32{0.5})
	boom := &runError{msg: "cuda out of memory"}
	f.decoder.RunFunc = func(map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
		return nil, boom
	}

	_, err := f.engine.Segment(testImage(8, 8), sam.Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
		Labels: []sam.Label{sam.LabelForeground},
	})
	require.ErrorIs(t, err, sam.ErrInference)
	require.ErrorIs(t, err, boom)
	// 不重试
	assert.Equal(t, 1, f.decoder.Calls())
}

type runError struct{ msg string }

func (e *runError) Error() string { return e.msg }

func TestEngine_MismatchedScores(t *testing.T) {
	f := newFixture(t, 0, []float32{0.5})
	f.decoder.RunFunc = func(map[string]*sam.Tensor) (map[string]*sam.Tensor, error) {
		out := samtest.MaskOutputs(decoderMasks, decoderScores, []int64{1, 2, 4, 4}, []float32{0.1, 0.2},
			func(int, int, int) float32 { return 1 })
		// masks 张量被当作 scores 读取时数量不一致
		out[decoderScores] = out[decoderMasks]
		return out, nil
	}
	_, err := f.engine.Segment(testImage(8, 8), sam.Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
		Labels: []sam.Label{sam.LabelForeground},
	})
	require.ErrorIs(t, err, sam.ErrInference)
}

func TestEngine_Destroy(t *testing.T) {
	f := newFixture(t, 1, []float32{0.5})

	require.NoError(t, f.engine.Destroy())
	assert.True(t, f.encoder.Destroyed())
	assert.True(t, f.decoder.Destroyed())
	require.NoError(t, f.engine.Destroy())

	_, err := f.engine.Segment(testImage(8, 8), sam.Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
		Labels: []sam.Label{sam.LabelForeground},
	})
	require.ErrorIs(t, err, sam.ErrDisposed)
}

func TestEngine_ConcurrentSegment(t *testing.T) {
	f := newFixture(t, 0, []float32{0.5, 0.7})
	f.encoder.Delay = 5 * time.Millisecond
	f.decoder.Delay = 5 * time.Millisecond

	prompt := sam.Prompt{Points: []image.Point{{X: 1, Y: 1}}, Labels: []sam.Label{sam.LabelForeground}}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Segment(testImage(16, 16), prompt)
			if err == nil && len(res.Masks) != 2 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.encoder.MaxInFlight())
	assert.Equal(t, 1, f.decoder.MaxInFlight())
	assert.Equal(t, 8, f.decoder.Calls())
}

func TestNewEngine_ModelLoadFailure(t *testing.T) {
	encoder := &samtest.Session{}
	cfg := DefaultConfig()
	cfg.EncodeModelPath = encPath
	cfg.DecodeModelPath = "missing.onnx"

	_, err := newEngine(cfg, samtest.Factory(map[string]*samtest.Session{encPath: encoder}, nil))
	require.ErrorIs(t, err, sam.ErrModelLoad)
	// 已创建的 encoder 被释放
	assert.True(t, encoder.Destroyed())

	// 模型输入与约定不一致
	cfg.DecodeModelPath = decPath
	_, err = newEngine(cfg, samtest.Factory(map[string]*samtest.Session{
		encPath: {}, decPath: {},
	}, map[string]samtest.Contract{
		decPath: {Inputs: []string{"image_embeddings", "point_coords", "point_labels", "orig_im_size"}, Outputs: decoderOutputs},
	}))
	require.ErrorIs(t, err, sam.ErrModelLoad)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.OnnxRuntimeLibPath)
	assert.True(t, cfg.AllowCPUFallback)
	assert.NotEmpty(t, cfg.EncodeModelPath)
}
