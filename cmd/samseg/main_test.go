package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/getcharzp/go-sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrompt(t *testing.T) {
	p, err := parsePrompt([]string{"10,20", " 30, 40, 0"}, "1,2,50,60")
	require.NoError(t, err)
	assert.Equal(t, []image.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}, p.Points)
	assert.Equal(t, []sam.Label{sam.LabelForeground, sam.LabelBackground}, p.Labels)
	assert.Equal(t, image.Rect(1, 2, 50, 60), *p.Box)

	p, err = parsePrompt(nil, "5,5,1,1")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(1, 1, 5, 5), *p.Box)
}

func TestParsePrompt_Invalid(t *testing.T) {
	for _, tt := range []struct {
		points []string
		box    string
	}{
		{nil, ""},
		{[]string{"10"}, ""},
		{[]string{"a,b"}, ""},
		{[]string{"1,2,3,4"}, ""},
		{[]string{"1,2,7"}, ""},
		{nil, "1,2,3"},
	} {
		_, err := parsePrompt(tt.points, tt.box)
		assert.ErrorIs(t, err, sam.ErrInvalidArgument, "%v %q", tt.points, tt.box)
	}
}

func TestDrawPrompt(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	box := image.Rect(5, 5, 35, 35)
	out := drawPrompt(src, sam.Prompt{
		Points: []image.Point{{X: 20, Y: 20}},
		Labels: []sam.Label{sam.LabelForeground},
		Box:    &box,
	})
	assert.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(20, 20))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(0, 0))
}
