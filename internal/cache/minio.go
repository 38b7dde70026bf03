package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// MinIOConfig holds settings for the S3 compatible object store backend.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string // optional; skips the bucket location lookup when set
	Bucket          string
	Prefix          string
}

// MinIOStore keeps one JSON object per video URL in a bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Store = (*MinIOStore)(nil)

type objectEntry struct {
	VideoURL string `json:"videoUrl"`
	Entry
}

// NewMinIOStore connects to the endpoint and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("empty minio endpoint")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("empty minio bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, err
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(s.prefix, key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read object: %w", err)
	}
	e, err := decodeObject(data, key)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, entry Entry) error {
	data, err := encodeObject(key, entry)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(s.prefix, key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: common.ContentTypeJSON},
	)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Close() error { return nil }

// objectKey hashes the URL so query strings never end up in object names.
func objectKey(prefix, videoURL string) string {
	sum := sha256.Sum256([]byte(videoURL))
	return path.Join(prefix, hex.EncodeToString(sum[:])+".json")
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func encodeObject(videoURL string, e Entry) ([]byte, error) {
	b, err := json.Marshal(objectEntry{VideoURL: videoURL, Entry: e})
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return b, nil
}

func decodeObject(data []byte, videoURL string) (Entry, error) {
	var oe objectEntry
	if err := json.Unmarshal(data, &oe); err != nil {
		return Entry{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	if oe.VideoURL != "" && oe.VideoURL != videoURL {
		return Entry{}, fmt.Errorf("object holds %q, want %q", oe.VideoURL, videoURL)
	}
	return oe.Entry, nil
}
