package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// requestTimeout bounds every s3 request.
const requestTimeout = 30 * time.Second

// A S3-compatible storage.
type s3Storage struct {
	client *s3.Client
	bucket string
}

// s3ObjectMeta implements the Stat interface.
type s3ObjectMeta struct {
	contentLength int64
	lastModified  time.Time
}

func (s *s3ObjectMeta) Size() int64 {
	return s.contentLength
}

func (s *s3ObjectMeta) ModTime() time.Time {
	return s.lastModified
}

// NewS3Storage creates a S3-compatible storage. The endpoint is `https://host/bucket`,
// objects are addressed path-style.
func NewS3Storage(options *StorageOptions) (Storage, error) {
	if options.Endpoint == "" {
		return nil, errors.New("missing endpoint")
	}
	u, err := url.Parse(options.Endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, errors.New("invalid endpoint scheme")
	}
	bucket := strings.Trim(u.Path, "/")
	if bucket == "" || strings.Contains(bucket, "/") {
		return nil, errors.New("missing bucket in endpoint")
	}
	if options.AccessKeyID == "" {
		return nil, errors.New("missing accessKeyID")
	}
	if options.SecretAccessKey == "" {
		return nil, errors.New("missing secretAccessKey")
	}
	region := options.Region
	if region == "" {
		region = "us-east-1"
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(options.AccessKeyID, options.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	apiEndpoint := u.Scheme + "://" + u.Host
	client := s3.NewFromConfig(config, func(o *s3.Options) {
		o.UsePathStyle = true
		o.EndpointResolver = s3.EndpointResolverFromURL(apiEndpoint)
	})
	return &s3Storage{client: client, bucket: bucket}, nil
}

func (s *s3Storage) Stat(key string) (Stat, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(err)
	}
	return &s3ObjectMeta{contentLength: out.ContentLength, lastModified: aws.ToTime(out.LastModified)}, nil
}

// Get reads the whole object, project files are small.
func (s *s3Storage) Get(key string) (io.ReadCloser, Stat, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, s3Error(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, err
	}
	stat := &s3ObjectMeta{contentLength: int64(len(data)), lastModified: aws.ToTime(out.LastModified)}
	return io.NopCloser(bytes.NewReader(data)), stat, nil
}

func (s *s3Storage) List(prefix string) ([]string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		page, err := paginator.NextPage(ctx)
		cancel()
		if err != nil {
			return nil, s3Error(err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Put buffers the content, the request needs the content length.
func (s *s3Storage) Put(key string, content io.Reader) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: int64(len(data)),
	})
	return s3Error(err)
}

func (s *s3Storage) Delete(key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return s3Error(err)
}

func (s *s3Storage) DeleteAll(prefix string) ([]string, error) {
	if p, _ := cleanPrefix(prefix); p == "" {
		return nil, errors.New("prefix is required")
	}
	keys, err := s.List(prefix)
	if err != nil {
		return nil, err
	}
	var deleted []string
	// a DeleteObjects request takes up to 1000 keys
	for i := 0; i < len(keys); i += 1000 {
		batch := keys[i:min(i+1000, len(keys))]
		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		cancel()
		if err != nil {
			return deleted, s3Error(err)
		}
		for _, obj := range out.Deleted {
			deleted = append(deleted, aws.ToString(obj.Key))
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return deleted, errors.New("delete " + aws.ToString(e.Key) + ": " + aws.ToString(e.Message))
		}
	}
	return deleted, nil
}

// s3Error maps the missing object errors to ErrNotFound.
func s3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}
