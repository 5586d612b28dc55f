package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/utils"
)

// AssetDownloader fetches the images a task references and stores them
// under a deterministic local layout so re-runs can skip work already
// done. A failed image never fails its block: the record keeps the
// remote URL with an empty local path.
type AssetDownloader struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	backoff   []time.Duration
}

// DownloaderConfig wires an AssetDownloader.
type DownloaderConfig struct {
	Limiter     *rate.Limiter
	UserAgent   string
	Timeout     time.Duration
	InsecureTLS bool

	// Backoff overrides the inter-attempt delays; a fetch makes
	// len(Backoff)+1 attempts. Used by tests.
	Backoff []time.Duration
}

// NewAssetDownloader builds a downloader sharing the run's rate limit.
func NewAssetDownloader(cfg DownloaderConfig) *AssetDownloader {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureTLS {
		client.Transport = insecureTransport()
	}
	return &AssetDownloader{
		client:    client,
		limiter:   cfg.Limiter,
		userAgent: cfg.UserAgent,
		backoff:   backoff,
	}
}

// DownloadImages resolves and fetches every image the block references.
// Files land at <assetsDir>/<page>/<guid>_<seq><ext>. Images already on
// disk are reused without a request.
func (d *AssetDownloader) DownloadImages(ctx context.Context, block models.Block, pc models.PageContext) []models.Image {
	refs := imageRefs(block.ContentHTML)
	if len(refs) == 0 {
		return nil
	}

	base, err := url.Parse(pc.URL)
	if err != nil {
		utils.Warnf("page url %q unparseable, skipping %d images", pc.URL, len(refs))
		return nil
	}

	dir := filepath.Join(pc.AssetsDir, pc.Page)
	images := make([]models.Image, 0, len(refs))
	for i, ref := range refs {
		img := d.downloadOne(ctx, base, ref, dir, block.GUID, i)
		images = append(images, img)
	}
	return images
}

// imageRefs pulls the src attributes out of the block markup.
func imageRefs(contentHTML string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return nil
	}
	var refs []string
	seen := map[string]bool{}
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") || seen[src] {
			return
		}
		seen[src] = true
		refs = append(refs, src)
	})
	return refs
}

// downloadOne fetches a single image with the shared retry schedule.
func (d *AssetDownloader) downloadOne(ctx context.Context, base *url.URL, ref, dir, guid string, seq int) models.Image {
	abs := resolveRef(base, ref)
	img := models.Image{
		ID:  fmt.Sprintf("%s_%d", guid, seq),
		URL: abs,
	}
	if abs == "" {
		utils.Warnf("image ref %q unresolvable against %s", ref, base)
		return img
	}

	local := filepath.Join(dir, fmt.Sprintf("%s_%d%s", guid, seq, extFor(abs)))
	if info, err := os.Stat(local); err == nil && info.Size() > 0 {
		img.LocalPath = local
		fillDimensionsFromFile(&img, local)
		return img
	}

	body, mime, err := d.get(ctx, abs)
	if err != nil {
		utils.Warnf("image download failed [%s]: %v", abs, err)
		return img
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		utils.Warnf("image dir %s: %v", dir, err)
		return img
	}
	if err := os.WriteFile(local, body, 0o644); err != nil {
		utils.Warnf("image write %s: %v", local, err)
		return img
	}

	img.LocalPath = local
	img.MIMEType = mime
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	return img
}

func (d *AssetDownloader) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error
	attempts := len(d.backoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.backoff[attempt-1]):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, "", err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", err
		}
		if d.userAgent != "" {
			req.Header.Set("User-Agent", d.userAgent)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}
		return body, resp.Header.Get("Content-Type"), nil
	}
	return nil, "", lastErr
}

// resolveRef turns a page-relative image reference into an absolute
// URL. The bank emits paths like "../../docs/ABC/img.png" relative to
// the questions endpoint.
func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// extFor derives the on-disk extension from the URL path, defaulting
// to .png for extensionless references.
func extFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".png"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp":
		return ext
	}
	return ".png"
}

func fillDimensionsFromFile(img *models.Image, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
}
