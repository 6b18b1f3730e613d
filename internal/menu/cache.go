package menu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"mensabot/pkg/logx"
)

// CandidateSource yields the ordered candidate URLs for a date's document.
type CandidateSource interface {
	Resolve(ctx context.Context, today time.Time) []string
}

// Converter turns a source document into a raster image. A failed
// conversion is signaled by the output file not appearing.
type Converter interface {
	Convert(ctx context.Context, srcPath, dstPath string) error
}

type CacheConfig struct {
	// Dir holds the cached document and image; it is created on demand.
	Dir string
	// FetchTimeout bounds each candidate download.
	FetchTimeout time.Duration
}

// Cache ensures exactly one source document and one rendered image exist
// for the current date, fetching and converting on demand and reusing both
// across repeated calls within the same week.
type Cache struct {
	cfg       CacheConfig
	source    CandidateSource
	converter Converter
	client    *http.Client
	log       logx.Logger
	group     singleflight.Group
}

func NewCache(cfg CacheConfig, source CandidateSource, converter Converter, log logx.Logger) *Cache {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Cache{
		cfg:       cfg,
		source:    source,
		converter: converter,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// SourcePath is where the week's document lives, keyed by week.
func (c *Cache) SourcePath(today time.Time) string {
	week := weekOf(today)
	return filepath.Join(c.cfg.Dir, fmt.Sprintf("%d_KW_%02d.pdf", week.Year, week.Week))
}

// ImagePath is where the rendered image lives, keyed by calendar date.
func (c *Cache) ImagePath(today time.Time) string {
	return filepath.Join(c.cfg.Dir, today.Format("2006-01-02")+".png")
}

// HasCurrentArtifact reports whether the rendered image for the date is
// already on disk, without performing any I/O beyond a stat.
func (c *Cache) HasCurrentArtifact(today time.Time) bool {
	return fileExists(c.ImagePath(today))
}

// EnsureArtifact returns the path of the rendered image for the date,
// fetching the source document and converting it only if missing. Calls for
// the same date are collapsed, so at most one fetch and one conversion run
// per week even under concurrent callers.
func (c *Cache) EnsureArtifact(ctx context.Context, today time.Time) (string, error) {
	key := today.Format("2006-01-02")
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.ensure(ctx, today)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) ensure(ctx context.Context, today time.Time) (string, error) {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return "", err
	}

	srcPath := c.SourcePath(today)
	if !fileExists(srcPath) {
		// A new week begins: drop whatever week we cached before.
		c.purge()
		if err := c.fetchSource(ctx, today, srcPath); err != nil {
			return "", err
		}
	}

	imgPath := c.ImagePath(today)
	if !fileExists(imgPath) {
		if err := c.converter.Convert(ctx, srcPath, imgPath); err != nil {
			c.log.Warn("menu conversion failed", logx.String("src", srcPath), logx.Err(err))
		}
		// The converter signals failure by not producing the file. The
		// source stays cached so the next call skips re-fetching.
		if !fileExists(imgPath) {
			return "", ErrConversionFailed
		}
	}

	return imgPath, nil
}

// purge removes all cached documents and images, any week.
func (c *Cache) purge() {
	for _, pattern := range []string{"*.pdf", "*.png"} {
		paths, err := filepath.Glob(filepath.Join(c.cfg.Dir, pattern))
		if err != nil {
			continue
		}
		for _, p := range paths {
			if err := os.Remove(p); err != nil {
				c.log.Warn("failed removing stale artifact", logx.String("path", p), logx.Err(err))
			}
		}
	}
}

// fetchSource tries the candidates in order and keeps the first document
// that downloads cleanly.
func (c *Cache) fetchSource(ctx context.Context, today time.Time, dstPath string) error {
	candidates := c.source.Resolve(ctx, today)
	for _, u := range candidates {
		if err := c.download(ctx, u, dstPath); err != nil {
			c.log.Info("candidate fetch failed", logx.String("url", u), logx.Err(err))
			continue
		}
		c.log.Info("menu document fetched", logx.String("url", u), logx.String("path", dstPath))
		return nil
	}
	c.log.Error("all candidate fetches failed", logx.Int("candidates", len(candidates)))
	return ErrSourceUnavailable
}

// download writes the response body to a temp file and renames it into
// place, so a partial download never shows up as a cached document.
func (c *Cache) download(ctx context.Context, url, dstPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.cfg.Dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dstPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
