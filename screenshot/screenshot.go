// Package screenshot captures a visual record of the page at each step and
// routes the encoded images economically: thumbnails and small full images
// stay inline on the step record, oversized full images move to the blob
// store which has no practical size limit.
package screenshot

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/internal/metrics"
)

const (
	// DefaultThumbMaxWidth is the pixel width thumbnails are scaled down to.
	DefaultThumbMaxWidth = 320
	// DefaultThumbQuality is the JPEG quality for thumbnails.
	DefaultThumbQuality = 70
	// DefaultFullQuality is the JPEG quality for inline full images.
	DefaultFullQuality = 85
	// DefaultBlobThreshold is the encoded size at or above which the full
	// image is relocated to the blob store.
	DefaultBlobThreshold = 200 * 1024
)

type Pipeline struct {
	blobs  flowscribe.BlobStore
	logger flowscribe.Logger

	thumbMaxWidth int
	thumbQuality  int
	fullQuality   int
	blobThreshold int
}

type options struct {
	logger        flowscribe.Logger
	thumbMaxWidth int
	thumbQuality  int
	fullQuality   int
	blobThreshold int
}

type Option func(*options)

func WithLogger(l flowscribe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithThumbMaxWidth(w int) Option {
	return func(o *options) {
		o.thumbMaxWidth = w
	}
}

func WithQualities(thumb, full int) Option {
	return func(o *options) {
		o.thumbQuality = thumb
		o.fullQuality = full
	}
}

func WithBlobThreshold(bytes int) Option {
	return func(o *options) {
		o.blobThreshold = bytes
	}
}

func New(blobs flowscribe.BlobStore, opts ...Option) *Pipeline {
	opt := options{
		logger:        flowscribe.NoopLogger{},
		thumbMaxWidth: DefaultThumbMaxWidth,
		thumbQuality:  DefaultThumbQuality,
		fullQuality:   DefaultFullQuality,
		blobThreshold: DefaultBlobThreshold,
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Pipeline{
		blobs:         blobs,
		logger:        opt.logger,
		thumbMaxWidth: opt.thumbMaxWidth,
		thumbQuality:  opt.thumbQuality,
		fullQuality:   opt.fullQuality,
		blobThreshold: opt.blobThreshold,
	}
}

// Processed holds the two encodings derived from one raw capture. Both stay
// inline on the step until routing decides otherwise at save time.
type Processed struct {
	Thumb []byte
	Full  []byte
}

// Process decodes the raw viewport capture (PNG from the privileged capture
// call) and derives the thumbnail and the lightly compressed full image.
func (p *Pipeline) Process(raw []byte) (Processed, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Processed{}, err
	}

	thumb, err := encodeJPEG(p.scaleToWidth(img, p.thumbMaxWidth), p.thumbQuality)
	if err != nil {
		return Processed{}, err
	}
	full, err := encodeJPEG(img, p.fullQuality)
	if err != nil {
		return Processed{}, err
	}
	return Processed{Thumb: thumb, Full: full}, nil
}

// Attach writes the processed images onto the step's meta.
func Attach(step *flowscribe.Step, pr Processed) {
	step.Meta.ScreenshotThumb = pr.Thumb
	step.Meta.ScreenshotFull = pr.Full
	step.Meta.ScreenshotInBlobStore = false
}

// RouteStep applies the size routing policy to one step. Full images below the
// threshold stay inline; at or above it the image moves to the blob store
// under BlobKey(flowID, stepID) and the inline copy is dropped.
func (p *Pipeline) RouteStep(ctx context.Context, flowID string, step *flowscribe.Step) error {
	full := step.Meta.ScreenshotFull
	if len(full) == 0 || step.Meta.ScreenshotInBlobStore {
		return nil
	}

	if len(full) < p.blobThreshold {
		metrics.ScreenshotBytes.WithLabelValues("inline").Add(float64(len(full)))
		return nil
	}

	err := p.blobs.Put(ctx, flowscribe.BlobKey(flowID, step.ID), full)
	if err != nil {
		return err
	}
	step.Meta.ScreenshotFull = nil
	step.Meta.ScreenshotInBlobStore = true
	metrics.ScreenshotBytes.WithLabelValues("blob").Add(float64(len(full)))

	p.logger.Debug(ctx, "screenshot relocated to blob store", flowscribe.MKV{
		"flow_id": flowID,
		"step_id": step.ID,
		"bytes":   strconv.Itoa(len(full)),
	})
	return nil
}

// RouteFlow routes every step of a flow. Implements flowscribe.ScreenshotRouter.
func (p *Pipeline) RouteFlow(ctx context.Context, flow *flowscribe.Flow) error {
	for i := range flow.Steps {
		err := p.RouteStep(ctx, flow.ID, &flow.Steps[i])
		if err != nil {
			return err
		}
	}
	return nil
}

var _ flowscribe.ScreenshotRouter = (*Pipeline)(nil)

func (p *Pipeline) scaleToWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
