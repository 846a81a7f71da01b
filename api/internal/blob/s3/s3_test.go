package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parent-bridge/api/internal/blob"
)

type fakeObject struct {
	data        []byte
	contentType string
}

// fakeS3 serves a single bucket from memory, two keys per listing page.
type fakeS3 struct {
	bucket  string
	objects map[string]fakeObject
	listErr error
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: map[string]fakeObject{}}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		for i, k := range keys {
			if k == tok {
				start = i
				break
			}
		}
	}
	end := start + 2
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[key] = fakeObject{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_UploadListDownloadDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("reports")
	s := NewWithClient(fake, "https://x.supabase.co/storage/v1/object/public")

	img, err := s.Upload(ctx, []byte{0xFF, 0xD8}, "photo.jpg", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co/storage/v1/object/public/reports/photo.jpg", img.PublicURL)
	assert.Equal(t, "image/jpeg", fake.objects["photo.jpg"].contentType)

	_, err = s.Upload(ctx, []byte{1}, "photo.jpg", "image/jpeg", "")
	assert.ErrorIs(t, err, blob.ErrExists)

	for _, k := range []string{".DS_Store", "notes.txt", "b.png", "a.gif", "nested/c.jpg", "assignment-2025-06-01-03-26-16.jpg"} {
		fake.objects[k] = fakeObject{data: []byte("x")}
	}
	list, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []blob.Object{
		{Name: "a.gif"},
		{Name: "assignment-2025-06-01-03-26-16.jpg"},
		{Name: "b.png"},
		{Name: "photo.jpg"},
	}, list)

	data, ct, err := s.Download(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data)
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = s.Download(ctx, "missing.jpg", "")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	ok, err := s.Delete(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListError(t *testing.T) {
	fake := newFakeS3("reports")
	fake.listErr = errors.New("access denied")
	_, err := NewWithClient(fake, "").List(context.Background(), "")
	var se *blob.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list", se.Op)
	assert.Equal(t, "reports", se.Bucket)
}

func TestStore_UploadRejectsBadName(t *testing.T) {
	_, err := NewWithClient(newFakeS3("reports"), "").Upload(context.Background(), nil, "../etc/passwd", "", "")
	assert.Error(t, err)
}
