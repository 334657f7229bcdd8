// Package s3store implements todo.Store on an S3 bucket.
//
// Each todo is one JSON object named <prefix><id>.json. IDs come from a
// counter object, <prefix>seq, which is only safe with a single writer
// process.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures a client built by NewClient.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewClient builds an S3 client. Static credentials are used when both
// keys are set; otherwise requests are sent anonymously.
func NewClient(opts Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			Source:          "asyncstate config",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(o)
}

// Store keeps todos as JSON objects under a key prefix.
type Store struct {
	client API
	bucket string
	prefix string

	// mu serializes counter updates.
	mu sync.Mutex
}

// New creates a Store over client.
func New(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(id int64) string {
	return s.prefix + strconv.FormatInt(id, 10) + ".json"
}

func (s *Store) counterKey() string {
	return s.prefix + "seq"
}

// List implements todo.Store.
func (s *Store) List(ctx context.Context) ([]todo.Todo, error) {
	out := []todo.Todo{}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			var t todo.Todo
			found, err := s.getJSON(ctx, key, &t)
			if err != nil {
				return nil, err
			}
			if found {
				out = append(out, t)
			}
		}
	}
	todo.SortByID(out)
	return out, nil
}

// Create implements todo.Store.
func (s *Store) Create(ctx context.Context, t todo.Todo) (todo.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64
	if _, err := s.getJSON(ctx, s.counterKey(), &seq); err != nil {
		return todo.Todo{}, err
	}
	seq++
	if err := s.putJSON(ctx, s.counterKey(), seq); err != nil {
		return todo.Todo{}, err
	}

	t.ID = seq
	if err := s.putJSON(ctx, s.key(t.ID), t); err != nil {
		return todo.Todo{}, err
	}
	return t, nil
}

// Update implements todo.Store.
func (s *Store) Update(ctx context.Context, t todo.Todo) (todo.Todo, error) {
	if err := s.exists(ctx, t.ID); err != nil {
		return todo.Todo{}, err
	}
	if err := s.putJSON(ctx, s.key(t.ID), t); err != nil {
		return todo.Todo{}, err
	}
	return t, nil
}

// Delete implements todo.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Close implements todo.Store.
func (s *Store) Close() error { return nil }

func (s *Store) exists(ctx context.Context, id int64) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if isNotFound(err) {
		return todo.NotFound(id)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// getJSON decodes the object at key into v. A missing object is not an
// error; found reports whether it existed.
func (s *Store) getJSON(ctx context.Context, key string, v any) (found bool, err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return false, unavailable(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.New(errors.CodeStoreCorrupt).
			WithDetailf("object %s", key).
			Wrap(err)
	}
	return true, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if stderrors.As(err, &nsk) || stderrors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func unavailable(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(errors.CodeStoreUnavailable).Wrap(err)
}
