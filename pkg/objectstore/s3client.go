package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cuemby/s3block/pkg/log"
)

// maxDeleteBatch is the per-call key cap accepted by S3's DeleteObjects.
const maxDeleteBatch = 1000

// S3Config carries the connection parameters for an S3Client, resolved
// from the configuration builder in pkg/config.
type S3Config struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	EndpointURL  string
	Bucket       string
}

// S3Client is the real Client backend, wrapping the AWS SDK v2 S3 client.
type S3Client struct {
	api    *s3.Client
	bucket string
}

var _ Client = (*S3Client)(nil)

// NewS3Client constructs an S3Client for cfg. It resolves the AWS SDK
// config once at session-open time and reuses the resulting client for
// every call on the session, per the one-client-per-connection design.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &S3Client{api: api, bucket: cfg.Bucket}, nil
}

func (c *S3Client) Get(ctx context.Context, key string, rng *Range) ([]byte, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
	}

	out, err := c.api.GetObject(ctx, in)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNoSuchKey
		}
		return nil, classifyErr("get", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classifyErr("get", err)
	}
	if rng != nil && int64(len(body)) != rng.Len() {
		return nil, fmt.Errorf("objectstore: short body from ranged get of %q: got %d bytes want %d", key, len(body), rng.Len())
	}
	return body, nil
}

func (c *S3Client) Put(ctx context.Context, key string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return classifyErr("put", err)
	}
	return nil
}

func (c *S3Client) DeleteMany(ctx context.Context, keys []string) ([]DeleteResult, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > maxDeleteBatch {
		return nil, fmt.Errorf("objectstore: delete_many called with %d keys, exceeds batch cap of %d", len(keys), maxDeleteBatch)
	}

	ids := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.bucket),
		Delete: &types.Delete{Objects: ids},
	})
	if err != nil {
		return nil, classifyErr("delete_many", err)
	}

	results := make([]DeleteResult, 0, len(keys))
	for _, deleted := range out.Deleted {
		results = append(results, DeleteResult{Key: aws.ToString(deleted.Key)})
	}
	for _, objErr := range out.Errors {
		results = append(results, DeleteResult{
			Key: aws.ToString(objErr.Key),
			Err: fmt.Errorf("objectstore: delete failed for %s: %s", aws.ToString(objErr.Key), aws.ToString(objErr.Message)),
		})
	}
	return results, nil
}

func (c *S3Client) List(ctx context.Context, prefix, startAfter string) ([]string, error) {
	var keys []string
	var token *string

	for {
		in := &s3.ListObjectsV2Input{
			Bucket: aws.String(c.bucket),
			Prefix: aws.String(prefix),
		}
		if startAfter != "" {
			in.StartAfter = aws.String(startAfter)
		}
		if token != nil {
			in.ContinuationToken = token
		}

		out, err := c.api.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, classifyErr("list", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	return keys, nil
}

func (c *S3Client) Head(ctx context.Context, key string) (int64, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, ErrNoSuchKey
		}
		return 0, classifyErr("head", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// classifyErr wraps a backend error, annotating transport-looking failures
// as TransientError for the Session Facade to translate.
func classifyErr(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		log.WithComponent("objectstore").Debug().Str("op", op).Str("code", apiErr.ErrorCode()).Msg("backend error")
		return fmt.Errorf("objectstore: %s: %w", op, err)
	}
	return &TransientError{Op: op, Err: err}
}
