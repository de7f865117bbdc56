// Package fetch implements the multi-connection HTTP download
// capability used to stage remote resources. A resource is written to
// a ".part" staging name and renamed into place only once the body is
// fully on disk, so the destination path never holds a partial file.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher stages the resource at url into dest. The file exists at
// dest only after a successful, complete download.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// minSegmentBytes keeps tiny files on a single connection.
const minSegmentBytes = 1 << 20

// HTTPFetcher downloads over HTTP, splitting range-capable resources
// into concurrent segments.
type HTTPFetcher struct {
	client         *http.Client
	logger         *zap.Logger
	maxConnections int
}

// NewHTTPFetcher builds a fetcher capped at maxConnections parallel
// segments per download.
func NewHTTPFetcher(logger *zap.Logger, maxConnections int) *HTTPFetcher {
	if maxConnections < 1 {
		maxConnections = 1
	}
	return &HTTPFetcher{
		client:         &http.Client{Timeout: 0},
		logger:         logger,
		maxConnections: maxConnections,
	}
}

// NewHTTPFetcherWithClient builds a fetcher around an existing client.
func NewHTTPFetcherWithClient(client *http.Client, logger *zap.Logger, maxConnections int) *HTTPFetcher {
	f := NewHTTPFetcher(logger, maxConnections)
	f.client = client
	return f
}

// Fetch downloads url into dest via a ".part" staging file.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	taskID := uuid.NewString()
	logger := f.logger.With(zap.String("task_id", taskID), zap.String("url", url))

	size, ranged, err := f.probe(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}

	part := dest + ".part"
	file, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("fetch %s: create staging file: %w", url, err)
	}

	start := time.Now()
	if ranged && size >= 2*minSegmentBytes && f.maxConnections > 1 {
		err = f.fetchSegmented(ctx, logger, url, file, size)
	} else {
		err = f.fetchSingle(ctx, url, file)
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("fetch %s: %w", url, err)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("fetch %s: finalize: %w", url, err)
	}

	logger.Info("download complete",
		zap.String("dest", dest),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// probe asks the server for size and range support.
func (f *HTTPFetcher) probe(ctx context.Context, url string) (size int64, ranged bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("probe status %s", resp.Status)
	}

	return resp.ContentLength, resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength > 0, nil
}

// fetchSingle streams the whole body over one connection.
func (f *HTTPFetcher) fetchSingle(ctx context.Context, url string, file *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	_, err = io.Copy(file, resp.Body)
	return err
}

// fetchSegmented downloads byte ranges concurrently. The first failed
// segment cancels the remaining ones.
func (f *HTTPFetcher) fetchSegmented(ctx context.Context, logger *zap.Logger, url string, file *os.File, size int64) error {
	segments := f.maxConnections
	if limit := int(size / minSegmentBytes); segments > limit {
		segments = limit
	}

	segmentSize := size / int64(segments)
	logger.Debug("segmented download",
		zap.Int("segments", segments),
		zap.Int64("segment_bytes", segmentSize))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < segments; i++ {
		offset := int64(i) * segmentSize
		end := offset + segmentSize - 1
		if i == segments-1 {
			end = size - 1
		}

		g.Go(func() error {
			return f.fetchRange(gctx, url, file, offset, end)
		})
	}
	return g.Wait()
}

// fetchRange writes one inclusive byte range at its file offset.
func (f *HTTPFetcher) fetchRange(ctx context.Context, url string, file *os.File, offset, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("range %d-%d: status %s", offset, end, resp.Status)
	}

	_, err = io.Copy(io.NewOffsetWriter(file, offset), resp.Body)
	if err != nil {
		return fmt.Errorf("range %d-%d: %w", offset, end, err)
	}
	return nil
}
