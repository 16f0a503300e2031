package mask

import (
	"image/color"
	"math"
	"sync"
)

// goldenRatio 相邻编号的色相间隔
const goldenRatio = 0.618033988749895

// Palette 按目标编号生成区分度高的颜色, 结果缓存在实例中
type Palette struct {
	mu         sync.Mutex
	saturation float64
	value      float64
	colors     map[int]color.RGBA
}

// NewPalette 创建调色板
func NewPalette() *Palette {
	return &Palette{
		saturation: 0.85,
		value:      0.95,
		colors:     make(map[int]color.RGBA),
	}
}

// Color 目标编号对应的颜色, 同一编号始终返回同一颜色
func (p *Palette) Color(id int) color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.colors[id]; ok {
		return c
	}
	hue := math.Mod(float64(id)*goldenRatio, 1)
	if hue < 0 {
		hue++
	}
	c := hsvToRGBA(hue, p.saturation, p.value)
	p.colors[id] = c
	return c
}

// Len 已缓存的颜色数
func (p *Palette) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.colors)
}

// hsvToRGBA h, s, v 均在 [0, 1]
func hsvToRGBA(h, s, v float64) color.RGBA {
	i := int(h * 6)
	f := h*6 - float64(i)
	pv := v * (1 - s)
	qv := v * (1 - f*s)
	tv := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, tv, pv
	case 1:
		r, g, b = qv, v, pv
	case 2:
		r, g, b = pv, v, tv
	case 3:
		r, g, b = pv, qv, v
	case 4:
		r, g, b = tv, pv, v
	default:
		r, g, b = v, pv, qv
	}
	return color.RGBA{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
		A: 255,
	}
}
