package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultBucket is used when no bucket name is configured.
const DefaultBucket = "unicorn"

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Option func(*S3)

// WithACL applies a canned ACL to every written object.
func WithACL(acl types.ObjectCannedACL) Option {
	return func(s *S3) { s.acl = acl }
}

type S3 struct {
	client s3API

	bucket    string
	bucketPtr *string
	prefix    string
	acl       types.ObjectCannedACL
}

func New(client s3API, bucket, prefix string, opts ...Option) *S3 {
	if client == nil {
		panic("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = DefaultBucket
	}

	s := &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Pointer estável (sem aws.String que aloca).
	s.bucketPtr = &s.bucket
	return s
}

func (s *S3) Bucket() string { return s.bucket }

func (s *S3) Write(ctx context.Context, req WriteRequest) (Outcome, error) {
	if req.Key == "" {
		return Outcome{}, &StorageError{Bucket: s.bucket, Err: errors.New("empty key")}
	}

	// Mantém semântica do S3 (não faz path-clean).
	key := strings.TrimLeft(req.Key, "/")
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	keyVar := key
	cl := int64(len(req.Data))

	input := s3.PutObjectInput{
		Bucket:        s.bucketPtr,
		Key:           &keyVar,
		Body:          bytes.NewReader(req.Data),
		ContentLength: &cl,
	}
	if req.ContentType != "" {
		ct := req.ContentType
		input.ContentType = &ct
	}
	if s.acl != "" {
		input.ACL = s.acl
	}

	out, err := s.client.PutObject(ctx, &input)
	if err != nil {
		se := &StorageError{Bucket: s.bucket, Key: key, Err: err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			se.Code = apiErr.ErrorCode()
		}
		return Outcome{}, se
	}

	o := Outcome{Bucket: s.bucket, Key: key}
	if out != nil {
		if out.ETag != nil {
			o.ETag = *out.ETag
		}
		if out.VersionId != nil {
			o.VersionID = *out.VersionId
		}
	}
	return o, nil
}
