package sam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckModelFile(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, CheckModelFile(""), ErrModelLoad)
	assert.ErrorIs(t, CheckModelFile(filepath.Join(dir, "missing.onnx")), ErrModelLoad)
	assert.ErrorIs(t, CheckModelFile(dir), ErrModelLoad)

	path := filepath.Join(dir, "model.onnx")
	assert.NoError(t, os.WriteFile(path, []byte("onnx"), 0o644))
	assert.NoError(t, CheckModelFile(path))
}

func TestCheckContract(t *testing.T) {
	in := []string{"image_embeddings", "point_coords"}
	out := []string{"masks", "iou_predictions"}

	assert.NoError(t, CheckContract("m.onnx", in, out, in, out))
	// 模型可以有多余的输出
	assert.NoError(t, CheckContract("m.onnx", in, append(out, "low_res_masks"), in, out))

	assert.ErrorIs(t, CheckContract("m.onnx", in, out, []string{"image_embeddings", "input_points"}, out), ErrModelLoad)
	assert.ErrorIs(t, CheckContract("m.onnx", in, out, in, []string{"pred_masks"}), ErrModelLoad)
	// 模型多出的输入无法提供
	assert.ErrorIs(t, CheckContract("m.onnx", append(in, "orig_im_size"), out, in, out), ErrModelLoad)
}
