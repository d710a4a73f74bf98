package screenshot_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/memstore"
	"github.com/flowscribe/flowscribe/screenshot"
)

// capturePNG renders a synthetic viewport capture of the given size.
func capturePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	jtest.RequireNil(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessScalesThumbnail(t *testing.T) {
	blobs := memstore.NewBlobStore()
	p := screenshot.New(blobs, screenshot.WithThumbMaxWidth(100))

	pr, err := p.Process(capturePNG(t, 400, 200))
	jtest.RequireNil(t, err)
	require.NotEmpty(t, pr.Thumb)
	require.NotEmpty(t, pr.Full)

	thumb, err := jpeg.Decode(bytes.NewReader(pr.Thumb))
	jtest.RequireNil(t, err)
	require.Equal(t, 100, thumb.Bounds().Dx())
	require.Equal(t, 50, thumb.Bounds().Dy())

	full, err := jpeg.Decode(bytes.NewReader(pr.Full))
	jtest.RequireNil(t, err)
	require.Equal(t, 400, full.Bounds().Dx())
}

func TestProcessKeepsSmallImages(t *testing.T) {
	p := screenshot.New(memstore.NewBlobStore(), screenshot.WithThumbMaxWidth(320))

	// Narrower than the thumb width: no upscaling.
	pr, err := p.Process(capturePNG(t, 64, 48))
	jtest.RequireNil(t, err)

	thumb, err := jpeg.Decode(bytes.NewReader(pr.Thumb))
	jtest.RequireNil(t, err)
	require.Equal(t, 64, thumb.Bounds().Dx())
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := screenshot.New(memstore.NewBlobStore())
	_, err := p.Process([]byte("not an image"))
	require.Error(t, err)
}

func TestRouteStepBoundary(t *testing.T) {
	ctx := context.Background()

	const threshold = 1024
	blobs := memstore.NewBlobStore()
	p := screenshot.New(blobs, screenshot.WithBlobThreshold(threshold))

	below := make([]byte, threshold-1)
	at := make([]byte, threshold)

	// Just below the threshold: stays inline.
	step := flowscribe.Step{ID: "step-0"}
	screenshot.Attach(&step, screenshot.Processed{Thumb: []byte("t"), Full: below})
	err := p.RouteStep(ctx, "flow-1", &step)
	jtest.RequireNil(t, err)
	require.False(t, step.Meta.ScreenshotInBlobStore)
	require.Len(t, step.Meta.ScreenshotFull, threshold-1)
	require.Equal(t, 0, blobs.Len())

	// At the threshold: relocated, inline copy dropped, thumb kept.
	step = flowscribe.Step{ID: "step-1"}
	screenshot.Attach(&step, screenshot.Processed{Thumb: []byte("t"), Full: at})
	err = p.RouteStep(ctx, "flow-1", &step)
	jtest.RequireNil(t, err)
	require.True(t, step.Meta.ScreenshotInBlobStore)
	require.Empty(t, step.Meta.ScreenshotFull)
	require.Equal(t, []byte("t"), step.Meta.ScreenshotThumb)

	stored, err := blobs.Get(ctx, flowscribe.BlobKey("flow-1", "step-1"))
	jtest.RequireNil(t, err)
	require.Len(t, stored, threshold)

	// Routing again is a no-op.
	err = p.RouteStep(ctx, "flow-1", &step)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, blobs.Len())
}

func TestRouteFlow(t *testing.T) {
	ctx := context.Background()

	blobs := memstore.NewBlobStore()
	p := screenshot.New(blobs, screenshot.WithBlobThreshold(10))

	flow := flowscribe.Flow{
		ID: "flow-1",
		Steps: []flowscribe.Step{
			{ID: "small", Meta: flowscribe.StepMeta{ScreenshotFull: []byte("tiny")}},
			{ID: "big", Meta: flowscribe.StepMeta{ScreenshotFull: make([]byte, 64)}},
			{ID: "none"},
		},
	}

	err := p.RouteFlow(ctx, &flow)
	jtest.RequireNil(t, err)

	require.False(t, flow.Steps[0].Meta.ScreenshotInBlobStore)
	require.True(t, flow.Steps[1].Meta.ScreenshotInBlobStore)
	require.False(t, flow.Steps[2].Meta.ScreenshotInBlobStore)
	require.Equal(t, 1, blobs.Len())
}
