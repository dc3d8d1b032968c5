//go:build !onnx

package embedder

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/memory"
)

func (r *Registry) newONNX(_ context.Context, model string) (memory.Embedder, error) {
	return nil, goerr.New("binary built without onnx support; rebuild with -tags onnx", goerr.V("model", model))
}
