package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/opencode-ai/wagate/internal/whatsapp"
)

// ErrMediaTooLarge is returned for attachments above the configured limit.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

const defaultMimeType = "application/octet-stream"

// mediaFetcher loads attachments from uploads or URLs.
type mediaFetcher struct {
	client   *http.Client
	maxBytes int64
}

func newMediaFetcher(maxBytes int64, timeout time.Duration) *mediaFetcher {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &mediaFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// fromUpload reads a multipart file.
func (m *mediaFetcher) fromUpload(fh *multipart.FileHeader) (whatsapp.Media, error) {
	if fh.Size > m.maxBytes {
		return whatsapp.Media{}, ErrMediaTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return whatsapp.Media{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := m.read(f)
	if err != nil {
		return whatsapp.Media{}, err
	}
	return whatsapp.Media{
		MimeType: mimeType(fh.Header.Get("Content-Type"), fh.Filename),
		Data:     data,
		Filename: fh.Filename,
	}, nil
}

// fromURL downloads rawURL.
func (m *mediaFetcher) fromURL(ctx context.Context, rawURL string) (whatsapp.Media, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return whatsapp.Media{}, fmt.Errorf("invalid media url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return whatsapp.Media{}, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return whatsapp.Media{}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return whatsapp.Media{}, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > m.maxBytes {
		return whatsapp.Media{}, ErrMediaTooLarge
	}

	data, err := m.read(resp.Body)
	if err != nil {
		return whatsapp.Media{}, err
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = ""
	}
	return whatsapp.Media{
		MimeType: mimeType(resp.Header.Get("Content-Type"), name),
		Data:     data,
		Filename: name,
	}, nil
}

func (m *mediaFetcher) read(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, ErrMediaTooLarge
	}
	return data, nil
}

// mimeType prefers the declared type and falls back to the file extension.
func mimeType(declared, filename string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != defaultMimeType {
			return mt
		}
	}
	if mt := mime.TypeByExtension(path.Ext(filename)); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return defaultMimeType
}
