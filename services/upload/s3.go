package uploadsvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core/document"
)

// S3Uploader stores files in an Amazon S3 bucket.
type S3Uploader struct {
	client *s3.Client
	region string
	bucket string
	prefix string
}

var _ document.Uploader = (*S3Uploader)(nil)

func NewS3Uploader(ctx context.Context, region, bucket, prefix string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		region: cfg.Region,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, session *document.UploadSession, f document.File) (document.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return document.UploadResult{}, err
	}
	key, err := objectKey(session, f)
	if err != nil {
		return document.UploadResult{}, err
	}
	if u.prefix != "" {
		key = u.prefix + "/" + key
	}
	body, contentType, err := sniff(f.Body)
	if err != nil {
		return document.UploadResult{}, err
	}

	pr := newProgressReader(ctx, body, f.Size, session)
	input := &s3.PutObjectInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(key),
		Body:                 pr,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if f.Size > 0 {
		// S3 rejects bodies shorter than the declared length
		input.ContentLength = aws.Int64(f.Size)
	}
	if _, err = u.client.PutObject(ctx, input); err != nil {
		return document.UploadResult{}, errors.Wrapf(err, "s3 put object bucket=%s key=%s", u.bucket, key)
	}

	return document.UploadResult{
		URL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, escapePath(key)),
		Name: f.Name,
		Size: storedSize(f, pr.n),
	}, nil
}

// storedSize is the declared size when S3 enforced it; the SDK may read the body more than once.
func storedSize(f document.File, read int64) int64 {
	if f.Size > 0 {
		return f.Size
	}
	return read
}
