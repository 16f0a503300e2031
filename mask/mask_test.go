package mask

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/getcharzp/go-sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoidThresholdEquivalence(t *testing.T) {
	values := []float32{
		0,
		math.SmallestNonzeroFloat32, -math.SmallestNonzeroFloat32,
		1e-40, -1e-40, 1e-30, -1e-30,
		1e-7, -1e-7, 1e-3, -1e-3,
		0.5, -0.5, 1, -1, 10, -10, 88, -88,
		1e10, -1e10, math.MaxFloat32, -math.MaxFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1)),
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		exp := rng.Intn(80) - 40
		v := float32(rng.NormFloat64() * math.Pow(10, float64(exp)))
		values = append(values, v)
	}

	for _, v := range values {
		p := Sigmoid(v)
		require.False(t, math.IsNaN(float64(p)), "sigmoid(%v) 为 NaN", v)
		if v > 0 {
			require.True(t, Positive(v), "logit %v", v)
			// 极小的正数在浮点下 sigmoid 恰好等于 0.5
			require.GreaterOrEqual(t, p, float32(Threshold), "logit %v", v)
		} else {
			require.False(t, Positive(v), "logit %v", v)
			require.LessOrEqual(t, p, float32(Threshold), "logit %v", v)
		}
		if p > Threshold {
			require.True(t, Positive(v), "sigmoid(%v) = %v", v, p)
		}
		if math.Abs(float64(v)) >= 1e-6 {
			require.Equal(t, p > Threshold, Positive(v), "logit %v", v)
		}
	}
}

func TestSampleIndex(t *testing.T) {
	assert.Equal(t, 0, SampleIndex(0, 100, 256))
	assert.Equal(t, 253, SampleIndex(99, 100, 256))
	assert.Equal(t, 255, SampleIndex(999, 1000, 256))
	assert.Equal(t, 0, SampleIndex(3, 4, 1))
	// 目标比 Mask 小
	assert.Equal(t, 128, SampleIndex(1, 2, 256))
	for dst := 1; dst < 600; dst += 37 {
		for x := 0; x < dst; x++ {
			i := SampleIndex(x, dst, 256)
			require.True(t, i >= 0 && i < 256)
		}
	}
}

func TestBinarize(t *testing.T) {
	m := sam.Mask{Width: 2, Height: 2, Logits: []float32{1, -1, -1, 1}}
	g, err := Binarize(m, 4, 4)
	require.NoError(t, err)

	want := []uint8{
		255, 255, 0, 0,
		255, 255, 0, 0,
		0, 0, 255, 255,
		0, 0, 255, 255,
	}
	assert.Equal(t, want, g.Pix)

	_, err = Binarize(sam.Mask{Width: 2, Height: 2}, 4, 4)
	require.ErrorIs(t, err, sam.ErrInvalidArgument)
	_, err = Binarize(m, 0, 4)
	require.ErrorIs(t, err, sam.ErrInvalidArgument)
}

func TestBounds(t *testing.T) {
	m := sam.Mask{Width: 4, Height: 4, Logits: make([]float32, 16)}
	for i := range m.Logits {
		m.Logits[i] = -1
	}
	_, ok := Bounds(m)
	require.False(t, ok)

	m.Logits[1*4+1] = 2
	m.Logits[2*4+2] = 3
	r, ok := Bounds(m)
	require.True(t, ok)
	assert.Equal(t, image.Rect(1, 1, 3, 3), r)

	ir, ok := ImageBounds(m, 40, 80)
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 20, 30, 60), ir)

	assert.InDelta(t, 2.0/16.0, Area(m), 1e-9)
}

func TestToGray(t *testing.T) {
	m := sam.Mask{Width: 3, Height: 1, Logits: []float32{-2, 0, 5}}
	g, err := ToGray(m)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 255}, g.Pix)
}
