package uploadsvc

import (
	"context"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"

	"github.com/trezcool/dossier/core/document"
)

const gcsBaseURL = "https://storage.googleapis.com/"

var errObjectExists = errors.New("object already exists")

// GCSUploader stores files in a Google Cloud Storage bucket.
type GCSUploader struct {
	bucketName string
	bucket     *storage.BucketHandle
}

var _ document.Uploader = (*GCSUploader)(nil)

func NewGCSUploader(ctx context.Context, bucketName string) (*GCSUploader, error) {
	if bucketName == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcs client")
	}
	return &GCSUploader{bucketName: bucketName, bucket: client.Bucket(bucketName)}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, session *document.UploadSession, f document.File) (document.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return document.UploadResult{}, err
	}
	key, err := objectKey(session, f)
	if err != nil {
		return document.UploadResult{}, err
	}
	body, contentType, err := sniff(f.Body)
	if err != nil {
		return document.UploadResult{}, err
	}

	// keys are random: never overwrite an existing object
	w := u.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	written, err := io.Copy(w, newProgressReader(ctx, body, f.Size, session))
	if err != nil {
		_ = w.Close()
		return document.UploadResult{}, errors.Wrapf(gcsError(err), "writing gs://%s/%s", u.bucketName, key)
	}
	if err = w.Close(); err != nil {
		return document.UploadResult{}, errors.Wrapf(gcsError(err), "finalizing gs://%s/%s", u.bucketName, key)
	}

	return document.UploadResult{
		URL:  gcsBaseURL + u.bucketName + "/" + escapePath(key),
		Name: f.Name,
		Size: written,
	}, nil
}

func gcsError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed {
		return errObjectExists
	}
	return err
}
