package behavior

import (
	"context"
	"encoding/json"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/frame"
)

var (
	background = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	skinTone   = color.RGBA{R: 224, G: 172, B: 140, A: 255}
)

// sceneWithFaces paints one 24x32 skin rectangle per origin on a dark frame.
func sceneWithFaces(origins ...[2]int) *frame.Raster {
	r := frame.Filled(160, 120, background)
	for _, o := range origins {
		for y := o[1]; y < o[1]+32; y++ {
			for x := o[0]; x < o[0]+24; x++ {
				i := (y*r.Width + x) * r.Channels
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = skinTone.R, skinTone.G, skinTone.B
			}
		}
	}
	return r
}

type fixedLocator struct {
	boxes []BoundingBox
	err   error
}

func (f fixedLocator) Locate(context.Context, *frame.Raster) ([]BoundingBox, error) {
	return f.boxes, f.err
}

func TestFaceCountPolicy(t *testing.T) {
	t.Parallel()

	box := BoundingBox{X: 1, Y: 1, W: 10, H: 10}
	tests := []struct {
		name      string
		faces     int
		wantLabel string
		wantSev   Severity
		wantConf  float64
	}{
		{"no faces", 0, LabelNoFace, SeverityHigh, DefaultNoFaceConfidence},
		{"one face", 1, "", SeverityUnknown, 0},
		{"two faces", 2, LabelMultipleFaces, SeverityCritical, DefaultMultipleFacesConfidence},
		{"five faces", 5, LabelMultipleFaces, SeverityCritical, DefaultMultipleFacesConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			boxes := make([]BoundingBox, tt.faces)
			for i := range boxes {
				boxes[i] = box
			}
			d := NewFaceCountDetector(fixedLocator{boxes: boxes})

			findings, err := d.Detect(context.Background(), frame.Filled(4, 4, background))
			require.NoError(t, err)

			if tt.wantLabel == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			f := findings[0]
			assert.Equal(t, tt.wantLabel, f.Label)
			assert.Equal(t, tt.wantSev, f.Severity)
			assert.InDelta(t, tt.wantConf, f.Confidence, 1e-9)
			assert.Equal(t, tt.faces, f.Extra[ExtraFaceCount])
			assert.NoError(t, f.Validate())
		})
	}
}

func TestFaceCountConfiguredConfidence(t *testing.T) {
	t.Parallel()

	d := NewFaceCountDetector(fixedLocator{}, WithNoFaceConfidence(0.7), WithMultipleFacesConfidence(0.6))
	findings, err := d.Detect(context.Background(), frame.Filled(2, 2, background))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.InDelta(t, 0.7, findings[0].Confidence, 1e-9)
}

func TestFaceCountDetectionErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	raster := frame.Filled(2, 2, background)

	_, err := NewFaceCountDetector(nil).Detect(ctx, raster)
	assert.True(t, errors.IsDetectionError(err))

	_, err = NewFaceCountDetector(fixedLocator{}).Detect(ctx, nil)
	assert.True(t, errors.IsDetectionError(err))

	_, err = NewFaceCountDetector(fixedLocator{err: errors.NewStd("model unavailable")}).Detect(ctx, raster)
	require.Error(t, err)
	assert.True(t, errors.IsDetectionError(err))
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestSkinRegionLocatorCountsFaces(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins [][2]int
		want    int
	}{
		{"empty room", nil, 0},
		{"one candidate", [][2]int{{40, 40}}, 1},
		{"two candidates", [][2]int{{20, 40}, {100, 40}}, 2},
		{"three candidates", [][2]int{{4, 4}, {64, 4}, {120, 80}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			faces, err := NewSkinRegionLocator().Locate(context.Background(), sceneWithFaces(tt.origins...))
			require.NoError(t, err)
			assert.Len(t, faces, tt.want)
		})
	}
}

func TestSkinRegionLocatorBoxAndFilters(t *testing.T) {
	t.Parallel()

	l := NewSkinRegionLocator()

	faces, err := l.Locate(context.Background(), sceneWithFaces([2]int{40, 40}))
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, BoundingBox{X: 40, Y: 40, W: 24, H: 32}, faces[0])

	// a single skin cell is noise
	r := frame.Filled(64, 64, background)
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			i := (y*r.Width + x) * 3
			r.Pix[i], r.Pix[i+1], r.Pix[i+2] = skinTone.R, skinTone.G, skinTone.B
		}
	}
	faces, err = l.Locate(context.Background(), r)
	require.NoError(t, err)
	assert.Empty(t, faces)

	// a wide strip fails the aspect filter
	strip := frame.Filled(160, 40, background)
	for y := 8; y < 16; y++ {
		for x := 0; x < 160; x++ {
			i := (y*strip.Width + x) * 3
			strip.Pix[i], strip.Pix[i+1], strip.Pix[i+2] = skinTone.R, skinTone.G, skinTone.B
		}
	}
	faces, err = l.Locate(context.Background(), strip)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestReferenceDetectorEndToEnd(t *testing.T) {
	t.Parallel()

	d := NewFaceCountDetector(NewSkinRegionLocator())
	ctx := context.Background()

	findings, err := d.Detect(ctx, sceneWithFaces([2]int{40, 40}))
	require.NoError(t, err)
	assert.Empty(t, findings, "a single face is nominal")

	findings, err = d.Detect(ctx, sceneWithFaces())
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, LabelNoFace, findings[0].Label)

	findings, err = d.Detect(ctx, sceneWithFaces([2]int{20, 40}, [2]int{100, 40}))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, LabelMultipleFaces, findings[0].Label)
	assert.Equal(t, 2, findings[0].Extra[ExtraFaceCount])
}

func TestDetectDoesNotMutateRaster(t *testing.T) {
	t.Parallel()

	r := sceneWithFaces([2]int{20, 40}, [2]int{100, 40})
	before := append([]uint8(nil), r.Pix...)

	_, err := NewFaceCountDetector(NewSkinRegionLocator()).Detect(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, before, r.Pix)
}

func TestSerializedAllowsOneCallAtATime(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	inner := DetectorFunc(func(context.Context, *frame.Raster) ([]Finding, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	d := Serialized(inner)
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			_, err := d.Detect(context.Background(), frame.Filled(1, 1, background))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestFindingValidate(t *testing.T) {
	t.Parallel()

	valid := func() Finding {
		return Finding{Label: "phone_visible", Confidence: 0.5, Severity: SeverityMedium}
	}

	tests := []struct {
		name   string
		mutate func(*Finding)
		ok     bool
	}{
		{"valid", func(*Finding) {}, true},
		{"confidence zero", func(f *Finding) { f.Confidence = 0 }, true},
		{"confidence one", func(f *Finding) { f.Confidence = 1 }, true},
		{"with bbox", func(f *Finding) { f.BoundingBox = &BoundingBox{X: 0, Y: 0, W: 5, H: 5} }, true},
		{"empty label", func(f *Finding) { f.Label = "" }, false},
		{"blank label", func(f *Finding) { f.Label = "   " }, false},
		{"negative confidence", func(f *Finding) { f.Confidence = -0.01 }, false},
		{"confidence above one", func(f *Finding) { f.Confidence = 1.01 }, false},
		{"nan confidence", func(f *Finding) { f.Confidence = math.NaN() }, false},
		{"missing severity", func(f *Finding) { f.Severity = SeverityUnknown }, false},
		{"negative bbox", func(f *Finding) { f.BoundingBox = &BoundingBox{X: -1, W: 2, H: 2} }, false},
		{"unserializable extra", func(f *Finding) { f.Extra = map[string]any{"ch": make(chan int)} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := valid()
			tt.mutate(&f)
			err := f.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestSeverityText(t *testing.T) {
	t.Parallel()

	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		parsed, err := ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	parsed, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, parsed)

	_, err = ParseSeverity("urgent")
	assert.True(t, errors.IsValidationError(err))

	assert.Less(t, int(SeverityHigh), int(SeverityCritical), "severity is ordinal")

	data, err := json.Marshal(Finding{Label: "x", Confidence: 1, Severity: SeverityCritical})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"critical"`)
}
