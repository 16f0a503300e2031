package sam

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"image"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// EmbeddingCache 以图片内容为键缓存编码器输出
//
// 同一张图片多次提示时跳过编码器
type EmbeddingCache struct {
	cache *lru.Cache
}

// NewEmbeddingCache 创建缓存, size <= 0 时返回 nil (不缓存)
func NewEmbeddingCache(size int) (*EmbeddingCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.NewWithEvict(size, func(key, _ interface{}) {
		Logger().Debug("embedding evicted", zap.String("key", key.(string)))
	})
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{cache: c}, nil
}

// Get 读取缓存, 返回的张量可直接作为解码器输入, 不可修改
func (c *EmbeddingCache) Get(key string) ([]*Tensor, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]*Tensor), true
}

// Add 写入缓存
func (c *EmbeddingCache) Add(key string, embeddings []*Tensor) {
	if c == nil {
		return
	}
	c.cache.Add(key, embeddings)
}

// Len 缓存条目数
func (c *EmbeddingCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Purge 清空缓存
func (c *EmbeddingCache) Purge() {
	if c == nil {
		return
	}
	c.cache.Purge()
}

// ImageKey 计算图片像素的 MD5
func ImageKey(img image.Image) string {
	nrgba := imaging.Clone(img)
	hash := md5.New()
	b := nrgba.Bounds()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(dims[4:], uint32(b.Dy()))
	hash.Write(dims[:])
	hash.Write(nrgba.Pix)
	return hex.EncodeToString(hash.Sum(nil))
}
