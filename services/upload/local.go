package uploadsvc

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core/document"
)

// LocalUploader stores files on the local filesystem; the API serves them under baseURL.
type LocalUploader struct {
	dir     string
	baseURL string
}

var _ document.Uploader = (*LocalUploader)(nil)

func NewLocalUploader(dir, baseURL string) (*LocalUploader, error) {
	if dir == "" {
		return nil, errors.New("local upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload dir")
	}
	return &LocalUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *LocalUploader) Dir() string { return u.dir }

func (u *LocalUploader) Upload(ctx context.Context, session *document.UploadSession, f document.File) (document.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return document.UploadResult{}, err
	}
	key, err := objectKey(session, f)
	if err != nil {
		return document.UploadResult{}, err
	}

	fullPath := filepath.Join(u.dir, filepath.FromSlash(key))
	if err = os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return document.UploadResult{}, errors.Wrap(err, "mkdir")
	}
	out, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return document.UploadResult{}, errors.Wrap(err, "creating file")
	}

	written, err := io.Copy(out, newProgressReader(ctx, f.Body, f.Size, session))
	if cErr := out.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(fullPath) // no partial files
		return document.UploadResult{}, errors.Wrap(err, "writing file")
	}

	return document.UploadResult{
		URL:  u.baseURL + "/" + escapePath(key),
		Name: f.Name,
		Size: written,
	}, nil
}

func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
