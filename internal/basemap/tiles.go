// Package basemap builds the self-hosted background tile pyramid for a
// story, either by downloading from a tile URL template or by slicing a
// single large image.
package basemap

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
)

// Tile addresses one tile in the pyramid.
type Tile struct {
	Z, X, Y int
}

// Build produces the tile pyramid described by the basemap configuration.
// Template sources ({z}/{x}/{y}) are downloaded level by level; a plain URL
// or file path is treated as a single image to slice.
func Build(client *http.Client, cfg *config.Basemap, concurrency int, force bool) error {
	if cfg == nil || cfg.Source == "" {
		return nil
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "basemap"
	}
	zoomLimit := cfg.ZoomLimit
	if zoomLimit <= 0 {
		zoomLimit = 6
	}

	if strings.Contains(cfg.Source, "{z}") || strings.Contains(cfg.Source, "{x}") {
		downloadPyramid(client, cfg.Source, dir, zoomLimit, concurrency, force)
		return nil
	}

	tileSize := cfg.TileSize
	if tileSize <= 0 {
		tileSize = 256
	}

	log.Info().
		Str("source", cfg.Source).
		Int("zoom_limit", zoomLimit).
		Msg("Starting single image processing (download & slice)")

	return sliceImage(client, cfg.Source, dir, zoomLimit, tileSize, force)
}

// downloadPyramid walks the pyramid top-down, expanding only tiles that
// existed on the previous level. Failed tiles are logged and skipped.
func downloadPyramid(client *http.Client, urlTemplate, dir string, zoomLimit, concurrency int, force bool) {
	if concurrency <= 0 {
		concurrency = 8
	}

	log.Info().Str("template", urlTemplate).Msg("Starting tile download")

	level := []Tile{{0, 0, 0}}

	for z := 0; z <= zoomLimit; z++ {
		if len(level) == 0 {
			break
		}

		log.Debug().Int("zoom", z).Int("count", len(level)).Msg("Processing zoom level")

		valid := fetchLevel(client, level, urlTemplate, dir, concurrency, force)
		if len(valid) == 0 {
			log.Info().Int("zoom", z).Msg("No data found at zoom level, stopping")
			break
		}

		next := make([]Tile, 0, len(valid)*4)
		for _, t := range valid {
			nx, ny := t.X*2, t.Y*2
			next = append(next,
				Tile{Z: z + 1, X: nx, Y: ny},
				Tile{Z: z + 1, X: nx + 1, Y: ny},
				Tile{Z: z + 1, X: nx, Y: ny + 1},
				Tile{Z: z + 1, X: nx + 1, Y: ny + 1},
			)
		}
		level = next
	}
}

func fetchLevel(client *http.Client, tiles []Tile, urlTemplate, dir string, concurrency int, force bool) []Tile {
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	var mu sync.Mutex
	valid := make([]Tile, 0, len(tiles))

	for _, t := range tiles {
		wg.Add(1)
		sem <- struct{}{}

		go func(t Tile) {
			defer wg.Done()
			defer func() { <-sem }()

			if fetchTile(client, t, urlTemplate, dir, force) {
				mu.Lock()
				valid = append(valid, t)
				mu.Unlock()
			}
		}(t)
	}

	wg.Wait()
	return valid
}

// fetchTile downloads one tile and stores it re-encoded as webp. It reports
// whether the tile exists, locally or remotely.
func fetchTile(client *http.Client, t Tile, urlTemplate, dir string, force bool) bool {
	outPath := tilePath(dir, t)

	if !force {
		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			return true
		}
	}

	url := strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", t.Z),
		"{x}", fmt.Sprintf("%d", t.X),
		"{y}", fmt.Sprintf("%d", t.Y),
	).Replace(urlTemplate)

	resp, err := client.Get(url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Tile download failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return false
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Tile decode failed")
		return false
	}

	if err := saveTile(outPath, img); err != nil {
		log.Error().Err(err).Str("path", outPath).Msg("Tile save failed")
		return false
	}

	return true
}

// sliceImage loads one large image and cuts it into a webp pyramid, resizing
// the original for every zoom level so quality is preserved.
func sliceImage(client *http.Client, source, dir string, zoomLimit, tileSize int, force bool) error {
	src, err := loadSourceImage(client, source)
	if err != nil {
		return err
	}

	bounds := src.Bounds()
	log.Info().
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("Source image loaded, starting tiling")

	for z := 0; z <= zoomLimit; z++ {
		gridSize := 1 << z
		totalPixels := gridSize * tileSize

		log.Debug().
			Int("zoom", z).
			Int("grid", gridSize).
			Int("px", totalPixels).
			Msg("Processing zoom level")

		dst := image.NewRGBA(image.Rect(0, 0, totalPixels, totalPixels))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

		var wg sync.WaitGroup
		// limit file I/O concurrency
		sem := make(chan struct{}, 20)

		for x := 0; x < gridSize; x++ {
			for y := 0; y < gridSize; y++ {
				wg.Add(1)
				sem <- struct{}{}

				go func(zx, zy int) {
					defer wg.Done()
					defer func() { <-sem }()

					outPath := tilePath(dir, Tile{Z: z, X: zx, Y: zy})
					if !force {
						if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
							return
						}
					}

					rect := image.Rect(zx*tileSize, zy*tileSize, (zx+1)*tileSize, (zy+1)*tileSize)
					sub := dst.SubImage(rect)

					if err := saveTile(outPath, sub); err != nil {
						log.Error().Err(err).Str("path", outPath).Msg("Tile save failed")
					}
				}(x, y)
			}
		}

		wg.Wait()
	}

	return nil
}

func loadSourceImage(client *http.Client, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := client.Get(source)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != 200 {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		img, _, err := image.Decode(resp.Body)
		return img, err
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	return img, err
}

func tilePath(dir string, t Tile) string {
	return filepath.Join(dir,
		fmt.Sprintf("%d", t.Z),
		fmt.Sprintf("%d", t.X),
		fmt.Sprintf("%d.webp", t.Y))
}

func saveTile(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 80}); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}
