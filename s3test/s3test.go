// Package s3test provides an in-memory S3 double for tests.
package s3test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Object is one stored object.
type Object struct {
	Body        []byte
	ContentType string
	ACL         types.ObjectCannedACL
	ETag        string
}

// Memory implements PutObject and GetObject over a map. Buckets must be
// created before use, like a real store.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string]Object
	puts    int
	putErr  error
}

func New(buckets ...string) *Memory {
	m := &Memory{buckets: make(map[string]map[string]Object)}
	for _, b := range buckets {
		m.CreateBucket(b)
	}
	return m
}

func (m *Memory) CreateBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string]Object)
	}
}

// FailPuts makes every following PutObject call return err. nil restores
// normal behavior.
func (m *Memory) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// Puts returns the number of PutObject calls, failed ones included.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.buckets[bucket][key]
	return o, ok
}

// Keys returns the number of objects in bucket.
func (m *Memory) Keys(bucket string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets[bucket])
}

func (m *Memory) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	m.puts++
	putErr := m.putErr
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if putErr != nil {
		return nil, putErr
	}

	var body []byte
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, noSuchBucket(aws.ToString(in.Bucket))
	}
	bucket[aws.ToString(in.Key)] = Object{
		Body:        body,
		ContentType: aws.ToString(in.ContentType),
		ACL:         in.ACL,
		ETag:        etag,
	}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (m *Memory) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, noSuchBucket(aws.ToString(in.Bucket))
	}
	o, ok := bucket[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String(fmt.Sprintf("key %q does not exist", aws.ToString(in.Key)))}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(o.Body)),
		ContentType: aws.String(o.ContentType),
		ETag:        aws.String(o.ETag),
	}, nil
}

func noSuchBucket(name string) error {
	return &smithy.GenericAPIError{Code: "NoSuchBucket", Message: fmt.Sprintf("bucket %q does not exist", name)}
}
