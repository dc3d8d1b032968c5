package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/MichaelIeong/SAGE/memory/embedder/mock"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New()
	gt.Equal(t, e.Dimensions(), 384)

	a, err := e.Embed(ctx, "Turn on the TV")
	gt.NoError(t, err)
	b, err := e.Embed(ctx, "turn on the tv!")
	gt.NoError(t, err)
	gt.Equal(t, a, b)
	gt.True(t, math.Abs(dot(a, a)-1) < 1e-5)
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	q, _ := e.Embed(ctx, "turn on the tv")
	near, _ := e.Embed(ctx, "please turn on tv")
	far, _ := e.Embed(ctx, "weather forecast tomorrow morning")

	gt.True(t, dot(q, near) > dot(q, far))
}

func TestMockEmbedder_NoWords(t *testing.T) {
	e := mock.NewWithDimensions(16)
	v, err := e.Embed(context.Background(), "")
	gt.NoError(t, err)
	gt.A(t, v).Length(16)
	gt.True(t, math.Abs(dot(v, v)-1) < 1e-5)
}
