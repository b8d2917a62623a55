package persistence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "bucket", "so")
	ctx := context.Background()

	err := store.Save(ctx, &Object{Name: "scores", Version: 2, Attributes: map[string]any{"alice": "first"}})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := fake.objects["bucket/so/scores.yaml"]; !ok {
		t.Fatalf("unexpected keys: %v", fake.objects)
	}

	obj, err := store.Load(ctx, "scores")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if obj.Version != 2 || obj.Attributes["alice"] != "first" {
		t.Errorf("unexpected object: %+v", obj)
	}

	names, _ := store.ObjectNames(ctx)
	if len(names) != 1 || names[0] != "scores" {
		t.Errorf("unexpected names: %v", names)
	}

	if err := store.Remove(ctx, "scores"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := store.Load(ctx, "scores"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3StoreSaveError(t *testing.T) {
	fake := newFakeS3()
	fake.fail = errors.New("access denied")
	store := NewS3Store(fake, "bucket", "")

	if err := store.Save(context.Background(), &Object{Name: "x"}); err == nil {
		t.Fatal("expected error")
	}
	names, _ := store.ObjectNames(context.Background())
	if len(names) != 0 {
		t.Errorf("failed save must not be listed: %v", names)
	}
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3Config{Region: "us-east-1", Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s"})
	opts := client.Options()
	if !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("unexpected options: path style %v endpoint %v", opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}
}
