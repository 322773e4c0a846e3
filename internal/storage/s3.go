package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"overlayvideos/internal/config"
	"overlayvideos/internal/mediakind"
)

// Published is one uploaded object and a presigned link to it.
type Published struct {
	Key string
	URL string
}

type S3Client struct {
	client        *minio.Client
	presignClient *minio.Client
	bucket        string
	urlTTL        time.Duration
}

// NewS3FromConfig builds the result publisher from the S3_* settings.
func NewS3FromConfig(cfg config.Config) (*S3Client, error) {
	c, err := NewS3(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, cfg.S3Bucket, cfg.S3UsePathStyle, cfg.S3PublicEndpoint)
	if err != nil {
		return nil, err
	}
	c.urlTTL = cfg.PublishURLTTL()
	return c, nil
}

func NewS3(endpoint, accessKey, secretKey, region, bucket string, usePathStyle bool, publicEndpoint string) (*S3Client, error) {
	host, secure, endpointURL, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}

	lookup := minio.BucketLookupAuto
	if usePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}

	if publicEndpoint == "" {
		publicEndpoint = endpointURL
	}

	var presignClient *minio.Client
	if strings.TrimSpace(publicEndpoint) != "" && publicEndpoint != endpointURL {
		pHost, pSecure, _, err := normalizeEndpoint(publicEndpoint)
		if err == nil {
			if c, err := minio.New(pHost, &minio.Options{
				Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
				Secure:       pSecure,
				Region:       region,
				BucketLookup: lookup,
			}); err == nil {
				presignClient = c
			}
		}
	}

	return &S3Client{
		client:        client,
		presignClient: presignClient,
		bucket:        bucket,
		urlTTL:        time.Hour,
	}, nil
}

// UploadFile stores filePath under objectKey with the content type of its
// media kind.
func (s *S3Client) UploadFile(ctx context.Context, filePath, objectKey string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType: mediakind.ContentType(filePath),
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

// PublishDir uploads every regular file below dir as prefix/<relative path>
// and returns presigned GET links in key order.
func (s *S3Client) PublishDir(ctx context.Context, dir, prefix string) ([]Published, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Published, 0, len(files))
	for _, rel := range files {
		key := objectKey(prefix, rel)
		if _, err := s.UploadFile(ctx, filepath.Join(dir, rel), key); err != nil {
			return out, fmt.Errorf("upload %s: %w", key, err)
		}
		link, err := s.Presign(ctx, key, s.urlTTL)
		if err != nil {
			return out, fmt.Errorf("presign %s: %w", key, err)
		}
		out = append(out, Published{Key: key, URL: link})
	}
	return out, nil
}

// Presign returns a time-limited GET URL, signed for the public endpoint
// when one is configured.
func (s *S3Client) Presign(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", errors.New("object key is empty")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	client := s.client
	if s.presignClient != nil {
		client = s.presignClient
	}
	params := url.Values{}
	params.Set("response-content-type", mediakind.ContentType(objectKey))
	u, err := client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func objectKey(prefix, rel string) string {
	rel = filepath.ToSlash(rel)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func normalizeEndpoint(raw string) (host string, secure bool, endpointURL string, err error) {
	if raw == "" {
		return "", false, "", errors.New("S3_ENDPOINT is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, "", err
		}
		if u.Host == "" {
			return "", false, "", errors.New("invalid S3_ENDPOINT")
		}
		return u.Host, u.Scheme == "https", u.Scheme + "://" + u.Host, nil
	}
	return raw, false, "http://" + raw, nil
}
