// Package docstore fetches source documents (the S&P methodology and company
// proxies) by URL or local path, keeps a copy on disk and extracts their text.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/logging"
	"sp1500_float/pkg/models"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"
)

// Store fetches a document by URL or local path. Failures are
// errs.ErrDocumentUnavailable.
type Store interface {
	Fetch(ctx context.Context, location string) (*models.Document, error)
}

const (
	// DefaultDir is where downloaded documents are kept.
	DefaultDir = "doc_assets"

	assetPrefix = "proxy_"
	maxBodySize = 200 << 20
)

// DiskStore downloads over HTTP with SEC-compliant headers and keeps the
// files under its directory so later runs reuse them.
type DiskStore struct {
	dir        string
	userAgent  string
	httpClient *http.Client
	logger     *log.Logger
	group      singleflight.Group
	maxBody    int64
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates dir if needed.
func NewDiskStore(dir, userAgent string, logger *log.Logger) (*DiskStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir %s: %w", dir, err)
	}
	return &DiskStore{
		dir:        dir,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.OrNop(logger),
		maxBody:    maxBodySize,
	}, nil
}

// Dir returns the asset directory.
func (s *DiskStore) Dir() string { return s.dir }

// Fetch returns the document at location. URLs already downloaded are
// served from disk.
func (s *DiskStore) Fetch(ctx context.Context, location string) (*models.Document, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errs.DocumentUnavailable("(empty)", errors.New("no location given"))
	}
	if !IsRemote(location) {
		return s.readLocal(location, location)
	}

	v, err, _ := s.group.Do(location, func() (any, error) {
		path := filepath.Join(s.dir, AssetName(location))
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			s.logger.Debug().Str("url", location).Str("path", path).Msg("using downloaded document")
			return s.readLocal(path, location)
		}
		if err := s.download(ctx, location, path); err != nil {
			return nil, errs.DocumentUnavailable(location, err)
		}
		return s.readLocal(path, location)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Document), nil
}

func (s *DiskStore) readLocal(path, source string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.DocumentUnavailable(source, err)
	}
	if len(data) == 0 {
		return nil, errs.DocumentUnavailable(source, errors.New("document is empty"))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.DocumentUnavailable(source, err)
	}

	mime := DetectMIME(path, data)
	text, err := ExtractText(mime, data)
	if err != nil {
		// The summarizer can still work from the raw bytes of a PDF.
		s.logger.Warn().Str("source", source).Str("mime", mime).Err(err).Msg("text extraction failed")
	}

	sum := sha256.Sum256(data)
	return &models.Document{
		ID:        hex.EncodeToString(sum[:]),
		Source:    source,
		Path:      path,
		MIMEType:  mime,
		Data:      data,
		Text:      text,
		FetchedAt: info.ModTime().UTC(),
	}, nil
}

// download saves url to path via a temp file. A 403 is retried once without
// the browser-style headers, which some SEC edge nodes reject.
func (s *DiskStore) download(ctx context.Context, rawURL, path string) error {
	s.logger.Info().Str("url", rawURL).Msg("downloading document")

	resp, err := s.get(ctx, rawURL, true)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		s.logger.Warn().Str("url", rawURL).Msg("access forbidden (403), retrying with minimal headers")
		if resp, err = s.get(ctx, rawURL, false); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.New("not found (404)")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, s.maxBody+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
	case n == 0:
		err = errors.New("empty response body")
	case n > s.maxBody:
		err = fmt.Errorf("response body exceeds %d bytes", s.maxBody)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.logger.Info().Str("path", path).Int64("bytes", n).Msg("document saved")
	return nil
}

func (s *DiskStore) get(ctx context.Context, rawURL string, fullHeaders bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if fullHeaders {
		req.Header.Set("Accept", "application/pdf,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	}
	return s.httpClient.Do(req)
}

var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// AssetName maps a URL to its file name under the asset directory, built
// from the last path segments so EDGAR's cik/accession/document stays unique.
func AssetName(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segs) > 3 {
		segs = segs[len(segs)-3:]
	}
	name := strings.Join(segs, "_")
	if name == "" {
		name = "document"
	}
	return assetPrefix + unsafeChars.ReplaceAllString(name, "_")
}

// Has reports whether location can be served without a network request:
// a local path, or a URL already downloaded.
func (s *DiskStore) Has(location string) bool {
	location = strings.TrimSpace(location)
	if location == "" {
		return false
	}
	path := location
	if IsRemote(location) {
		path = filepath.Join(s.dir, AssetName(location))
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// IsRemote reports whether location is an http(s) URL rather than a local path.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Asset is a downloaded document on disk.
type Asset struct {
	Name    string    `json:"filename"`
	Path    string    `json:"path"`
	Size    int64     `json:"size_bytes"`
	ModTime time.Time `json:"modified"`
}

// List returns downloaded documents, newest first.
func (s *DiskStore) List() ([]Asset, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var assets []Asset
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), assetPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		assets = append(assets, Asset{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ModTime.After(assets[j].ModTime) })
	return assets, nil
}

// Usage sums the size of all downloaded documents.
func (s *DiskStore) Usage() (count int, bytes int64, err error) {
	assets, err := s.List()
	if err != nil {
		return 0, 0, err
	}
	for _, a := range assets {
		bytes += a.Size
	}
	return len(assets), bytes, nil
}

// Cleanup removes downloaded documents last modified before cutoff.
func (s *DiskStore) Cleanup(cutoff time.Time) (int, error) {
	assets, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range assets {
		if !a.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			s.logger.Warn().Str("path", a.Path).Err(err).Msg("remove old document failed")
			continue
		}
		removed++
		s.logger.Info().Str("file", a.Name).Msg("removed old document")
	}
	return removed, nil
}
