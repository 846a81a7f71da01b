package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"parent-bridge/api/internal/blob"
)

var _ blob.Store = (*Store)(nil)

// API is the subset of *s3.Client the store needs.
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	// Endpoint of an S3-compatible gateway (e.g. Supabase Storage). Empty uses AWS.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Store keeps images in S3-compatible object storage.
type Store struct {
	client  API
	baseURL string
}

// New loads AWS configuration and builds a path-style client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.AccessKeyID,
					SecretAccessKey: cfg.SecretAccessKey,
					Source:          "ExplicitConfig",
				}, nil
			}),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.PublicBaseURL), nil
}

func NewWithClient(client API, publicBaseURL string) *Store {
	return &Store{client: client, baseURL: publicBaseURL}
}

// Upload never overwrites: an existing key fails with blob.ErrExists.
func (s *Store) Upload(ctx context.Context, data []byte, name, contentType, bucket string) (blob.StoredImage, error) {
	bucket = blob.BucketOrDefault(bucket)
	if err := blob.ValidName(name); err != nil {
		return blob.StoredImage{}, &blob.StoreError{Op: "upload", Bucket: bucket, Name: name, Err: err}
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
			err = blob.ErrExists
		}
		return blob.StoredImage{}, &blob.StoreError{Op: "upload", Bucket: bucket, Name: name, Err: err}
	}
	return blob.StoredImage{Name: name, PublicURL: s.PublicURL(name, bucket)}, nil
}

func (s *Store) List(ctx context.Context, bucket string) ([]blob.Object, error) {
	bucket = blob.BucketOrDefault(bucket)
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &blob.StoreError{Op: "list", Bucket: bucket, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// top-level objects only
			if strings.Contains(key, "/") {
				continue
			}
			names = append(names, key)
		}
	}
	return blob.FilterImages(names), nil
}

// Delete reports false when the object did not exist.
func (s *Store) Delete(ctx context.Context, name, bucket string) (bool, error) {
	bucket = blob.BucketOrDefault(bucket)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &blob.StoreError{Op: "delete", Bucket: bucket, Name: name, Err: err}
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return false, &blob.StoreError{Op: "delete", Bucket: bucket, Name: name, Err: err}
	}
	return true, nil
}

func (s *Store) Download(ctx context.Context, name, bucket string) ([]byte, string, error) {
	bucket = blob.BucketOrDefault(bucket)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			err = blob.ErrNotFound
		}
		return nil, "", &blob.StoreError{Op: "download", Bucket: bucket, Name: name, Err: err}
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", &blob.StoreError{Op: "download", Bucket: bucket, Name: name, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, aws.ToString(out.ContentType), nil
}

func (s *Store) PublicURL(name, bucket string) string {
	return blob.PublicURL(s.baseURL, bucket, name)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	return isCode(err, "NotFound", "NoSuchKey")
}

func isCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
