// Package gallery stores reference face samples as image files named
// "<person>_<id>.<ext>" in one directory.
package gallery

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"face-attendance-go/internal/recognition"

	log "github.com/sirupsen/logrus"
)

var sampleExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// LabelFromFile returns the person label encoded in a sample file name:
// the stem up to the first underscore.
func LabelFromFile(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if i := strings.IndexByte(stem, '_'); i >= 0 {
		return stem[:i]
	}
	return stem
}

// ValidLabel reports whether name can be stored as a gallery label.
func ValidLabel(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.ContainsAny(name, `_/\`) && name != "." && name != ".."
}

// DirGallery is a recognition.Gallery over a directory. The index is built on
// first use and refreshed by Reload or Add; decoded samples are cached.
type DirGallery struct {
	dir       string
	cacheSize int

	mu      sync.RWMutex
	loaded  bool
	persons []string
	files   map[string][]string
	cache   map[string]image.Image
}

// New creates a gallery rooted at dir. cacheSize bounds the decoded images kept
// in memory; 0 disables caching.
func New(dir string, cacheSize int) *DirGallery {
	return &DirGallery{
		dir:       dir,
		cacheSize: cacheSize,
		files:     make(map[string][]string),
		cache:     make(map[string]image.Image),
	}
}

// Dir returns the gallery directory.
func (g *DirGallery) Dir() string {
	return g.dir
}

// Reload rescans the directory.
func (g *DirGallery) Reload() error {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return fmt.Errorf("failed to read gallery directory: %w", err)
		}
	}

	files := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() || !sampleExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		label := LabelFromFile(e.Name())
		if label == "" {
			continue
		}
		files[label] = append(files[label], filepath.Join(g.dir, e.Name()))
	}

	persons := make([]string, 0, len(files))
	for p := range files {
		sort.Strings(files[p])
		persons = append(persons, p)
	}
	sort.Strings(persons)

	g.mu.Lock()
	g.persons = persons
	g.files = files
	g.cache = make(map[string]image.Image)
	g.loaded = true
	g.mu.Unlock()

	log.WithFields(log.Fields{"dir": g.dir, "persons": len(persons)}).Debug("Gallery indexed")
	return nil
}

func (g *DirGallery) ensureLoaded() error {
	g.mu.RLock()
	loaded := g.loaded
	g.mu.RUnlock()
	if loaded {
		return nil
	}
	return g.Reload()
}

// Persons returns the known labels in sorted order.
func (g *DirGallery) Persons(ctx context.Context) ([]string, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.persons...), nil
}

// SamplesFor returns lazily loaded references for person.
func (g *DirGallery) SamplesFor(ctx context.Context, person string) ([]recognition.Reference, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	paths := g.files[person]
	g.mu.RUnlock()

	refs := make([]recognition.Reference, 0, len(paths))
	for _, p := range paths {
		path := p
		refs = append(refs, recognition.Reference{
			Person: person,
			Source: path,
			Load:   func() (image.Image, error) { return g.load(path) },
		})
	}
	return refs, nil
}

// Counts returns the number of persons and samples.
func (g *DirGallery) Counts() (persons, samples int) {
	if err := g.ensureLoaded(); err != nil {
		return 0, 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, f := range g.files {
		samples += len(f)
	}
	return len(g.persons), samples
}

// Add writes img as "<person>_<id>.jpg" and indexes it.
func (g *DirGallery) Add(person string, id uint, img image.Image) (string, error) {
	if !ValidLabel(person) {
		return "", fmt.Errorf("invalid gallery label %q", person)
	}
	if err := g.ensureLoaded(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create gallery directory: %w", err)
	}

	path := filepath.Join(g.dir, fmt.Sprintf("%s_%d.jpg", person, id))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create sample file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode sample: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write sample: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, known := g.files[person]; !known {
		g.persons = append(g.persons, person)
		sort.Strings(g.persons)
	}
	if !contains(g.files[person], path) {
		g.files[person] = append(g.files[person], path)
		sort.Strings(g.files[person])
	}
	delete(g.cache, path)
	return path, nil
}

// Remove deletes every sample of person.
func (g *DirGallery) Remove(person string) (int, error) {
	if err := g.ensureLoaded(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for _, p := range g.files[person] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
		delete(g.cache, p)
		removed++
	}
	delete(g.files, person)
	for i, p := range g.persons {
		if p == person {
			g.persons = append(g.persons[:i], g.persons[i+1:]...)
			break
		}
	}
	return removed, nil
}

func (g *DirGallery) load(path string) (image.Image, error) {
	g.mu.RLock()
	img, ok := g.cache[path]
	g.mu.RUnlock()
	if ok {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := recognition.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	g.mu.Lock()
	if cached, ok := g.cache[path]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	if len(g.cache) < g.cacheSize {
		g.cache[path] = decoded
	}
	g.mu.Unlock()
	return decoded, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
