package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3API struct {
	mu sync.Mutex

	putCalls int
	lastIn   *s3.PutObjectInput
	lastBody []byte

	out    *s3.PutObjectOutput
	putErr error
}

func (f *fakeS3API) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.putCalls++
	f.lastIn = in
	putErr := f.putErr
	out := f.out
	f.mu.Unlock()

	if putErr != nil {
		return nil, putErr
	}

	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.mu.Lock()
		f.lastBody = b
		f.mu.Unlock()
	}
	if out == nil {
		out = &s3.PutObjectOutput{}
	}
	return out, nil
}

// no-capture fake for benchmarks: minimal overhead, no body reads/copies.
type fakeS3NoCapture struct {
	mu       sync.Mutex
	putCalls int
}

func (f *fakeS3NoCapture) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.putCalls++
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func TestS3_Write_BuildsKeyWithPrefixWithoutCleaning(t *testing.T) {
	f := &fakeS3API{out: &s3.PutObjectOutput{ETag: aws.String(`"abc123"`), VersionId: aws.String("v1")}}
	s := New(f, "bkt", "/pfx/")

	data := []byte(`{"name":"honey","rainbow":true}`)
	out, err := s.Write(context.Background(), WriteRequest{
		Key:         "/a/../b/x.json",
		Data:        data,
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putCalls != 1 {
		t.Fatalf("expected 1 call, got %d", f.putCalls)
	}
	if aws.ToString(f.lastIn.Bucket) != "bkt" {
		t.Fatalf("bucket: %q", aws.ToString(f.lastIn.Bucket))
	}
	if aws.ToString(f.lastIn.Key) != "pfx/a/../b/x.json" {
		t.Fatalf("key: %q", aws.ToString(f.lastIn.Key))
	}
	if aws.ToString(f.lastIn.ContentType) != "application/json" {
		t.Fatalf("content-type: %q", aws.ToString(f.lastIn.ContentType))
	}
	if f.lastIn.ContentLength == nil || *f.lastIn.ContentLength != int64(len(data)) {
		t.Fatalf("content-length: %#v", f.lastIn.ContentLength)
	}
	if f.lastIn.ACL != "" {
		t.Fatalf("unexpected acl: %q", f.lastIn.ACL)
	}
	if !bytes.Equal(f.lastBody, data) {
		t.Fatalf("body mismatch: %q", string(f.lastBody))
	}

	want := Outcome{Bucket: "bkt", Key: "pfx/a/../b/x.json", ETag: `"abc123"`, VersionID: "v1"}
	if out != want {
		t.Fatalf("outcome: got %+v want %+v", out, want)
	}
}

func TestS3_New_DefaultBucket(t *testing.T) {
	f := &fakeS3API{}
	s := New(f, "  ", "")
	if s.Bucket() != DefaultBucket {
		t.Fatalf("bucket = %q; want %q", s.Bucket(), DefaultBucket)
	}
	if _, err := s.Write(context.Background(), WriteRequest{Key: "test", Data: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(f.lastIn.Bucket) != DefaultBucket {
		t.Fatalf("bucket sent: %q", aws.ToString(f.lastIn.Bucket))
	}
}

func TestS3_New_NilClientPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(nil, "bkt", "")
}

func TestS3_Write_ACL(t *testing.T) {
	f := &fakeS3API{}
	s := New(f, "bkt", "", WithACL(types.ObjectCannedACLBucketOwnerFullControl))
	if _, err := s.Write(context.Background(), WriteRequest{Key: "k", Data: []byte("1")}); err != nil {
		t.Fatal(err)
	}
	if f.lastIn.ACL != types.ObjectCannedACLBucketOwnerFullControl {
		t.Fatalf("acl: %q", f.lastIn.ACL)
	}
}

func TestS3_Write_EmptyKeyReturnsError(t *testing.T) {
	f := &fakeS3API{}
	s := New(f, "bkt", "")
	_, err := s.Write(context.Background(), WriteRequest{Key: ""})
	if !IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if f.putCalls != 0 {
		t.Fatalf("expected no put calls, got %d", f.putCalls)
	}
}

func TestS3_Write_PropagatesPutError(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeS3API{putErr: boom}
	s := New(f, "bkt", "p")
	_, err := s.Write(context.Background(), WriteRequest{Key: "x", Data: []byte("1")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Bucket != "bkt" || se.Key != "p/x" || se.Code != "" {
		t.Fatalf("unexpected storage error: %+v", se)
	}
}

func TestS3_Write_CapturesAPIErrorCode(t *testing.T) {
	f := &fakeS3API{putErr: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}}
	s := New(f, "missing", "")
	_, err := s.Write(context.Background(), WriteRequest{Key: "x", Data: []byte("1")})

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %v", err)
	}
	if se.Code != "NoSuchBucket" {
		t.Fatalf("code = %q", se.Code)
	}
}

func BenchmarkS3_Write_NoCapture(b *testing.B) {
	for _, size := range []int{0, 32, 128, 1024} {
		b.Run(fmt.Sprintf("size=%s", strconv.Itoa(size)), func(b *testing.B) {
			f := &fakeS3NoCapture{}
			s := New(f, "bkt", "pfx")
			data := make([]byte, size)
			req := WriteRequest{Key: "x.json", Data: data, ContentType: "application/json"}
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Write(ctx, req); err != nil {
					b.Fatalf("write: %v", err)
				}
			}
		})
	}
}
