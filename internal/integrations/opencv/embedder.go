package opencv

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// sfaceInput is the SFace network input edge length.
const sfaceInput = 112

// Embedder computes SFace embeddings and compares them by cosine distance.
// Embeddings of reference images are cached by image identity, so galleries
// that hand out the same decoded image each time are embedded once.
type Embedder struct {
	net gocv.Net
	mu  sync.Mutex

	cacheMu   sync.Mutex
	cache     map[image.Image][]float32
	cacheSize int
}

// NewEmbedder loads an SFace ONNX model.
func NewEmbedder(model string, cacheSize int, backend gocv.NetBackendType, target gocv.NetTargetType) (*Embedder, error) {
	if err := checkModel(model); err != nil {
		return nil, err
	}
	net := gocv.ReadNet(model, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load recognizer model from %s", model)
	}
	net.SetPreferableBackend(backend)
	net.SetPreferableTarget(target)
	return &Embedder{
		net:       net,
		cache:     make(map[image.Image][]float32),
		cacheSize: cacheSize,
	}, nil
}

// Distance returns 1 - cosine similarity of the two faces' embeddings.
func (e *Embedder) Distance(ctx context.Context, face, reference image.Image) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, err := e.Embed(face)
	if err != nil {
		return 0, fmt.Errorf("embed face: %w", err)
	}
	b, err := e.reference(reference)
	if err != nil {
		return 0, fmt.Errorf("embed reference: %w", err)
	}
	return 1 - cosine(a, b), nil
}

// Embed returns the L2-normalized embedding of img.
func (e *Embedder) Embed(img image.Image) ([]float32, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("empty face image")
	}

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(sfaceInput, sfaceInput), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	e.mu.Unlock()
	defer output.Close()

	n := int(output.Total())
	if n == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = output.GetFloatAt(0, i)
	}
	return normalize(vec), nil
}

func (e *Embedder) reference(img image.Image) ([]float32, error) {
	e.cacheMu.Lock()
	vec, ok := e.cache[img]
	e.cacheMu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := e.Embed(img)
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	if len(e.cache) >= e.cacheSize {
		// gallery reloads hand out new images; start over rather than track age
		e.cache = make(map[image.Image][]float32)
	}
	if e.cacheSize > 0 {
		e.cache[img] = vec
	}
	e.cacheMu.Unlock()
	return vec, nil
}

// Close releases the network.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
