// Package uploadsvc holds the binary storage adapters documents are uploaded to.
package uploadsvc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
)

var errInvalidFileName = errors.New("invalid file name")

// New returns the uploader of the configured backend.
func New(ctx context.Context, conf core.DocumentsConfig) (document.Uploader, error) {
	switch conf.UploadBackend {
	case core.UploadBackendLocal, "":
		return NewLocalUploader(conf.LocalDir, conf.LocalBaseURL)
	case core.UploadBackendGCS:
		return NewGCSUploader(ctx, conf.GCSBucket)
	case core.UploadBackendS3:
		return NewS3Uploader(ctx, conf.S3Region, conf.S3Bucket, conf.S3Prefix)
	}
	return nil, errors.Errorf("unknown upload backend %q", conf.UploadBackend)
}

// SanitizeFileName removes path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errInvalidFileName
	}
	return s, nil
}

// objectKey places every upload under its record, with a 128-bit random prefix so that
// a resubmission never overwrites the previous file. The prefix also makes the key
// unguessable: local files are served to whoever holds their URL.
func objectKey(session *document.UploadSession, f document.File) (string, error) {
	name, err := SanitizeFileName(f.Name)
	if err != nil {
		return "", err
	}
	prefix, err := randomID()
	if err != nil {
		return "", err
	}
	return path.Join(session.RecordID, prefix+"_"+name), nil
}

func randomID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generating object key")
	}
	return hex.EncodeToString(b[:]), nil
}

// sniff detects the content type of the body and returns a reader replaying the sniffed bytes.
func sniff(r io.Reader) (io.Reader, string, error) {
	var buf [512]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", errors.Wrap(err, "reading file head")
	}
	return io.MultiReader(bytes.NewReader(buf[:n]), r), http.DetectContentType(buf[:n]), nil
}

// progressReader counts the bytes read and reports the progress to the session.
// Reads fail once ctx is done. It stops at 99%: 100% is reported when the upload is attached.
type progressReader struct {
	ctx     context.Context
	r       io.Reader
	total   int64
	n       int64
	session *document.UploadSession
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, session *document.UploadSession) *progressReader {
	return &progressReader{ctx: ctx, r: r, total: total, session: session}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.r.Read(p)
	pr.n += int64(n)
	if pr.total > 0 && n > 0 {
		pct := int(pr.n * 100 / pr.total)
		if pct > 99 {
			pct = 99
		}
		pr.session.Report(pct)
	}
	return n, err
}
