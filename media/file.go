// Package media models the files that travel with job submissions. A
// MediaFile wraps raw content with a name and content type; the handler
// decides per provider whether it is inlined as base64, attached as a
// multipart part or uploaded ahead of dispatch.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/socaity/fastsdk-go/sdkerr"
)

// MediaFile is an in-memory file with enough metadata to serialize it for
// any transport the providers accept.
type MediaFile struct {
	// Name is the file name sent to the server, including extension.
	Name string
	// ContentType is the MIME type; detected when not set explicitly.
	ContentType string

	content []byte
}

// downloadTimeout bounds fetching a MediaFile from a URL source.
const downloadTimeout = 120 * time.Second

// FromBytes creates a MediaFile from raw content.
func FromBytes(name string, content []byte) *MediaFile {
	f := &MediaFile{Name: name, content: content}
	f.ContentType = f.detectContentType()
	return f
}

// FromReader creates a MediaFile by draining the reader.
func FromReader(name string, r io.Reader) (*MediaFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "read media content for %q", name)
	}
	return FromBytes(name, content), nil
}

// FromPath creates a MediaFile from a local file.
func FromPath(path string) (*MediaFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "read media file %s", path)
	}
	return FromBytes(filepath.Base(path), content), nil
}

// FromURL downloads the content behind a URL into a MediaFile.
func FromURL(ctx context.Context, client *http.Client, url string) (*MediaFile, error) {
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "build download request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "download media from %s", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, sdkerr.New(sdkerr.KindFileNotReadable, "download media from %s: status %d", url, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "read media body from %s", url)
	}
	f := FromBytes(urlFileName(url), content)
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		f.ContentType = ct
	}
	return f, nil
}

// FromBase64 decodes a plain base64 string or a data URI into a MediaFile.
func FromBase64(name, encoded string) (*MediaFile, error) {
	contentType := ""
	if strings.HasPrefix(encoded, "data:") {
		rest := strings.TrimPrefix(encoded, "data:")
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, sdkerr.New(sdkerr.KindFileNotReadable, "malformed data URI for %q", name)
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		encoded = payload
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindFileNotReadable, err, "decode base64 content for %q", name)
	}
	f := FromBytes(name, content)
	if contentType != "" {
		f.ContentType = contentType
	}
	return f, nil
}

// Bytes returns the raw content.
func (f *MediaFile) Bytes() []byte { return f.content }

// Size returns the content length in bytes.
func (f *MediaFile) Size() int64 { return int64(len(f.content)) }

// Base64 returns the content as a standard base64 string.
func (f *MediaFile) Base64() string {
	return base64.StdEncoding.EncodeToString(f.content)
}

// DataURI returns the content as a data URI with the content type embedded.
func (f *MediaFile) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", f.ContentType, f.Base64())
}

// AsFileModel returns the JSON object shape async providers expect for file
// payloads.
func (f *MediaFile) AsFileModel() map[string]any {
	return map[string]any{
		"file_name":    f.Name,
		"content_type": f.ContentType,
		"content":      f.Base64(),
	}
}

func (f *MediaFile) detectContentType() string {
	if ext := filepath.Ext(f.Name); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(f.content) > 0 {
		return http.DetectContentType(f.content)
	}
	return "application/octet-stream"
}

func urlFileName(url string) string {
	trimmed := strings.SplitN(url, "?", 2)[0]
	name := filepath.Base(strings.TrimRight(trimmed, "/"))
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
