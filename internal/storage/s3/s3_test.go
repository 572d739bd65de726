package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeAPI struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	headErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string][]byte)}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k, v := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(v))),
				LastModified: aws.Time(time.Unix(0, 0)),
			})
		}
	}
	return out, nil
}

func (f *fakeAPI) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "empty region", modify: func(c *Config) { c.Region = "" }, wantErr: true},
		{name: "empty bucket", modify: func(c *Config) { c.Bucket = "" }, wantErr: true},
		{name: "kms", modify: func(c *Config) { c.ServerSideEncryption = "aws:kms" }},
		{name: "bad sse", modify: func(c *Config) { c.ServerSideEncryption = "rot13" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetStorageClass(t *testing.T) {
	tests := []struct {
		class    string
		expected types.StorageClass
	}{
		{"STANDARD", types.StorageClassStandard},
		{"standard_ia", types.StorageClassStandardIa},
		{"GLACIER_IR", types.StorageClassGlacierIr},
		{"", types.StorageClassStandard},
		{"bogus", types.StorageClassStandard},
	}
	for _, tt := range tests {
		cfg := &Config{StorageClass: tt.class}
		if got := cfg.GetStorageClass(); got != tt.expected {
			t.Errorf("GetStorageClass(%q) = %v, want %v", tt.class, got, tt.expected)
		}
	}
}

func TestUploadDownloadList(t *testing.T) {
	api := newFakeAPI()
	cfg := DefaultConfig()
	cfg.ServerSideEncryption = "AES256"
	c := NewClientWithAPI(api, cfg, nil)
	ctx := context.Background()

	out, err := c.Upload(ctx, &UploadInput{
		Key:         "R1/ACC-1/bundle.json",
		Body:        []byte(`{"ok":true}`),
		ContentType: "application/json",
		Metadata:    map[string]string{"anchor": "ACC-1"},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if out.Key != "cases/R1/ACC-1/bundle.json" {
		t.Errorf("Key = %q", out.Key)
	}
	if out.Location != "s3://fraud-workbench-exports/cases/R1/ACC-1/bundle.json" {
		t.Errorf("Location = %q", out.Location)
	}
	if out.Size != 11 || out.ETag != `"etag-1"` {
		t.Errorf("out = %+v", out)
	}
	put := api.puts[0]
	if put.ServerSideEncryption != types.ServerSideEncryptionAes256 {
		t.Errorf("sse = %v", put.ServerSideEncryption)
	}
	if aws.ToString(put.ContentType) != "application/json" || put.Metadata["anchor"] != "ACC-1" {
		t.Errorf("put = %+v", put)
	}

	data, err := c.Download(ctx, "R1/ACC-1/bundle.json")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %s", data)
	}

	objects, err := c.List(ctx, "R1/", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 1 || objects[0].Size != 11 {
		t.Errorf("objects = %+v", objects)
	}

	if m := c.GetMetrics(); m.ObjectsUploaded != 1 || m.BytesUploaded != 11 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestDownloadMissingCountsError(t *testing.T) {
	c := NewClientWithAPI(newFakeAPI(), DefaultConfig(), nil)
	if _, err := c.Download(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
	if c.GetMetrics().Errors != 1 {
		t.Errorf("Errors = %d, want 1", c.GetMetrics().Errors)
	}
}

func TestHealthCheck(t *testing.T) {
	api := newFakeAPI()
	c := NewClientWithAPI(api, DefaultConfig(), nil)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() = %v", err)
	}
	api.headErr = errors.New("forbidden")
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
