package sam

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePrompt_Scale(t *testing.T) {
	p := Prompt{
		Points: []image.Point{{X: 0, Y: 0}, {X: 320, Y: 120}, {X: 639, Y: 479}},
		Labels: []Label{LabelForeground, LabelBackground, LabelForeground},
	}
	enc, err := EncodePrompt(p, image.Rect(0, 0, 640, 480), InputSize)
	require.NoError(t, err)

	require.Equal(t, 3, enc.NumPoints())
	assert.Equal(t, []float32{1, 0, 1}, enc.Labels)
	assert.Equal(t, float32(0), enc.Coords[0])
	assert.Equal(t, float32(0), enc.Coords[1])
	assert.InDelta(t, 512, enc.Coords[2], 1e-3)
	assert.InDelta(t, 256, enc.Coords[3], 1e-3)

	// 右下角像素落在最后一个缩放步长内
	assert.InDelta(t, 1023, enc.Coords[4], 1024.0/640)
	assert.InDelta(t, 1023, enc.Coords[5], 1024.0/480)
	assert.Less(t, enc.Coords[4], float32(1024))
	assert.Less(t, enc.Coords[5], float32(1024))
}

func TestEncodePrompt_Box(t *testing.T) {
	// 左右颠倒的框也按左上/右下追加
	box := image.Rect(441, 349, 367, 168)
	p := Prompt{
		Points: []image.Point{{X: 100, Y: 100}},
		Labels: []Label{LabelForeground},
		Box:    &box,
	}
	enc, err := EncodePrompt(p, image.Rect(0, 0, 1024, 1024), InputSize)
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 2, 3}, enc.Labels)
	assert.Equal(t, []float32{100, 100, 367, 168, 441, 349}, enc.Coords)
	assert.Equal(t, []int64{1, 2, 3}, enc.Int64Labels())
}

func TestEncodePrompt_SubImageOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	sub := img.SubImage(image.Rect(100, 100, 300, 300))
	b := sub.Bounds()
	box := image.Rect(150, 150, 250, 250)
	p := Prompt{
		Points: []image.Point{b.Min, b.Max.Sub(image.Pt(1, 1))},
		Labels: []Label{LabelForeground, LabelForeground},
		Box:    &box,
	}
	enc, err := EncodePrompt(p, b, InputSize)
	require.NoError(t, err)

	// 左上角像素映射到模型空间原点
	assert.Equal(t, float32(0), enc.Coords[0])
	assert.Equal(t, float32(0), enc.Coords[1])
	assert.Less(t, enc.Coords[2], float32(InputSize))
	assert.Less(t, enc.Coords[3], float32(InputSize))
	assert.InDelta(t, 1018.88, enc.Coords[2], 1e-2)
	assert.InDeltaSlice(t, []float32{256, 256, 768, 768}, enc.Coords[4:], 1e-3)
}

func TestEncodePrompt_Invalid(t *testing.T) {
	_, err := EncodePrompt(Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
	}, image.Rect(0, 0, 10, 10), InputSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = EncodePrompt(Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
		Labels: []Label{Label(5)},
	}, image.Rect(0, 0, 10, 10), InputSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = EncodePrompt(Prompt{}, image.Rect(0, 0, 10, 10), InputSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = EncodePrompt(Prompt{
		Points: []image.Point{{X: 1, Y: 1}},
		Labels: []Label{LabelForeground},
	}, image.Rect(0, 0, 0, 10), InputSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrompt_Empty(t *testing.T) {
	assert.True(t, Prompt{ObjectID: 3}.Empty())
	box := image.Rect(0, 0, 1, 1)
	assert.False(t, Prompt{Box: &box}.Empty())
}
