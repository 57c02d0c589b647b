package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/roadmap/internal/core/kv"
)

type object struct {
	data []byte
	etag string
}

// memS3 evaluates conditional writes the way S3 does.
type memS3 struct {
	mu      sync.Mutex
	objects map[string]object
	writes  int
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string]object{}}
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(obj.data)),
		ETag: aws.String(obj.etag),
	}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := aws.ToString(in.Key)
	obj, exists := m.objects[key]
	if in.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	if in.IfMatch != nil && (!exists || obj.etag != aws.ToString(in.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.writes++
	etag := fmt.Sprintf("%q", fmt.Sprintf("etag-%d", m.writes))
	m.objects[key] = object{data: data, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(obj.etag)}, nil
}

func TestStore_GetMissing(t *testing.T) {
	store := NewWithAPI(newMemS3(), "roadmap")

	var v map[string]any
	version, err := store.GetVersioned(context.Background(), "roadmap:items", &v)
	require.NoError(t, err)
	assert.Equal(t, kv.NoVersion, version)
	assert.Nil(t, v)
}

func TestStore_PutIfVersion(t *testing.T) {
	ctx := context.Background()
	store := NewWithAPI(newMemS3(), "roadmap")

	v1, err := store.PutIfVersion(ctx, "doc", map[string]int{"n": 1}, kv.NoVersion)
	require.NoError(t, err)
	assert.NotEqual(t, kv.NoVersion, v1)

	_, err = store.PutIfVersion(ctx, "doc", map[string]int{"n": 9}, kv.NoVersion)
	require.ErrorIs(t, err, kv.ErrConflict)

	v2, err := store.PutIfVersion(ctx, "doc", map[string]int{"n": 2}, v1)
	require.NoError(t, err)

	_, err = store.PutIfVersion(ctx, "doc", map[string]int{"n": 3}, v1)
	var cerr *kv.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, v1, cerr.Expected)
	assert.Equal(t, v2, cerr.Current)

	var got map[string]int
	version, err := store.GetVersioned(ctx, "doc", &got)
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.Equal(t, 2, got["n"])
}

func TestStore_OtherErrorsAreNotConflicts(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "AccessDenied"})
	assert.False(t, isPreconditionFailed(err))
	assert.True(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.True(t, isNotFound(fmt.Errorf("x: %w", &types.NoSuchKey{})))
}
