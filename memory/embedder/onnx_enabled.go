//go:build onnx

package embedder

import (
	"context"

	"github.com/MichaelIeong/SAGE/memory"
	"github.com/MichaelIeong/SAGE/memory/embedder/onnx"
)

// newONNX treats model as the path of a model.onnx file with tokenizer.json
// beside it.
func (r *Registry) newONNX(_ context.Context, model string) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:         model,
		SharedLibraryPath: r.onnxLibrary,
	})
}
