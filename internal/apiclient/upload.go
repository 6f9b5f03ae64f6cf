package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrNilForm is returned by Upload when no form is given
var ErrNilForm = errors.New("upload form is nil")

// ProgressFunc is called as the request body is written
type ProgressFunc func(sent, total int64)

// forwardOnly drops reports that do not advance past the highest one seen.
// A request retried after a token refresh writes its body a second time.
func forwardOnly(fn ProgressFunc) ProgressFunc {
	var mu sync.Mutex
	var high int64
	return func(sent, total int64) {
		mu.Lock()
		if sent <= high {
			mu.Unlock()
			return
		}
		high = sent
		mu.Unlock()
		fn(sent, total)
	}
}

// File is one file part of a multipart upload
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Form is a multipart payload
type Form struct {
	Fields map[string]string
	Files  []File
}

// Upload posts form as multipart/form-data and reports progress
func (c *Client) Upload(ctx context.Context, endpoint string, form *Form, progress ProgressFunc, opts ...RequestOption) (*Envelope, error) {
	if form == nil {
		return nil, ErrNilForm
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, form.Fields[k]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, f := range form.Files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create part %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	r := newRequest(http.MethodPost, endpoint, opts)
	r.body = buf.Bytes()
	r.multipart = true
	r.contentType = w.FormDataContentType()
	if progress != nil {
		r.progress = forwardOnly(progress)
	}

	return c.doJSON(ctx, r)
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		sent := atomic.AddInt64(&p.sent, int64(n))
		p.fn(sent, p.total)
	}
	return n, err
}

// Blob is a binary response
type Blob struct {
	Data        []byte
	ContentType string
}

// GetBlob fetches a binary resource. The body is never parsed as JSON.
func (c *Client) GetBlob(ctx context.Context, endpoint string, opts ...RequestOption) (*Blob, error) {
	resp, err := c.execute(ctx, newRequest(http.MethodGet, endpoint, opts))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rawError(resp, data)
	}
	return &Blob{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// GetText fetches a plain-text resource
func (c *Client) GetText(ctx context.Context, endpoint string, opts ...RequestOption) (string, error) {
	resp, err := c.execute(ctx, newRequest(http.MethodGet, endpoint, opts))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", rawError(resp, data)
	}
	return string(data), nil
}

func rawError(resp *http.Response, body []byte) error {
	msg := errorMessage(bytes.TrimSpace(body))
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = statusMessage(resp)
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Body: body}
}
