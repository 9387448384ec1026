// Copyright 2025 <developmentseed.org>. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"
)

const (
	defaultBlockSize  = 512 * 1024
	defaultCacheItems = 256
	defaultCacheTTL   = 10 * time.Minute
)

// HTTPSource serves ranged reads over HTTP Range requests. Reads are aligned
// to fixed-size blocks and blocks are cached, so repeated access to the same
// region of a remote file does not repeat the request.
type HTTPSource struct {
	client    *http.Client
	url       string
	size      uint64
	blockSize uint64
	ttl       time.Duration
	cache     *ccache.Cache[[]byte]
	log       *zap.SugaredLogger
}

// HTTPOption configures NewHTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithBlockSize sets the cache block size in bytes.
func WithBlockSize(n uint64) HTTPOption {
	return func(s *HTTPSource) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

// WithCacheItems sets how many blocks the cache retains.
func WithCacheItems(n int64) HTTPOption {
	return func(s *HTTPSource) {
		s.cache = ccache.New(ccache.Configure[[]byte]().MaxSize(n).ItemsToPrune(uint32(n / 16)))
	}
}

// WithCacheTTL sets how long cached blocks stay valid.
func WithCacheTTL(ttl time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.ttl = ttl }
}

// WithHTTPLogger attaches a structured logger.
func WithHTTPLogger(log *zap.SugaredLogger) HTTPOption {
	return func(s *HTTPSource) { s.log = log }
}

// NewHTTPSource probes url with a HEAD request to learn its size, then serves
// ranged reads against it.
func NewHTTPSource(ctx context.Context, url string, opts ...HTTPOption) (*HTTPSource, error) {
	s := &HTTPSource{
		client:    http.DefaultClient,
		url:       url,
		blockSize: defaultBlockSize,
		ttl:       defaultCacheTTL,
		cache:     ccache.New(ccache.Configure[[]byte]().MaxSize(defaultCacheItems).ItemsToPrune(16)),
	}
	for _, opt := range opts {
		opt(s)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch: HEAD %s: %s", url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("fetch: HEAD %s: no content length", url)
	}
	s.size = uint64(resp.ContentLength)
	return s, nil
}

// Size returns the object size reported at open time.
func (s *HTTPSource) Size() uint64 { return s.size }

// ReadRange assembles the requested range from cached blocks, fetching the
// missing ones.
func (s *HTTPSource) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	if offset >= s.size {
		return nil, io.EOF
	}
	if offset+length > s.size {
		length = s.size - offset
	}

	out := make([]byte, 0, length)
	for block := offset / s.blockSize; uint64(len(out)) < length; block++ {
		data, err := s.fetchBlock(ctx, block)
		if err != nil {
			return nil, err
		}
		start := uint64(0)
		if block == offset/s.blockSize {
			start = offset % s.blockSize
		}
		if start > uint64(len(data)) {
			break
		}
		remaining := length - uint64(len(out))
		chunk := data[start:]
		if uint64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		if uint64(len(data)) < s.blockSize {
			break
		}
	}
	return out, nil
}

func (s *HTTPSource) fetchBlock(ctx context.Context, block uint64) ([]byte, error) {
	key := strconv.FormatUint(block, 10)
	item, err := s.cache.Fetch(key, s.ttl, func() ([]byte, error) {
		start := block * s.blockSize
		end := start + s.blockSize - 1
		if end >= s.size {
			end = s.size - 1
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusPartialContent:
		case http.StatusNotFound:
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("fetch: GET %s range %d-%d: %s", s.url, start, end, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if s.log != nil {
			s.log.Infow("fetched block", "block", block, "bytes", len(data))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return item.Value(), nil
}
