package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/threadcart/storefront/internal/services"
)

const defaultPublicBaseURL = "https://storage.googleapis.com"

// MediaUploaderConfig configures where catalog media lands.
type MediaUploaderConfig struct {
	Bucket        string
	PublicBaseURL string
	MaxImageBytes int64
	MaxVideoBytes int64
	Expiry        time.Duration
}

// MediaUploader signs browser uploads of product images and reel videos.
type MediaUploader struct {
	client  *Client
	bucket  string
	baseURL string
	limits  map[services.UploadKind]int64
	expiry  time.Duration
}

// NewMediaUploader constructs a MediaUploader writing into cfg.Bucket.
func NewMediaUploader(client *Client, cfg MediaUploaderConfig) (*MediaUploader, error) {
	if client == nil {
		return nil, errors.New("media uploader: client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPublicBaseURL + "/" + bucket
	}
	return &MediaUploader{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
		limits: map[services.UploadKind]int64{
			services.UploadKindProductImage: cfg.MaxImageBytes,
			services.UploadKindReelVideo:    cfg.MaxVideoBytes,
		},
		expiry: cfg.Expiry,
	}, nil
}

// SignUpload returns a signed PUT URL for the object and the URL it will be served from.
func (u *MediaUploader) SignUpload(ctx context.Context, req services.MediaUploadRequest) (services.UploadURL, error) {
	objectKey, err := BuildObjectPath(AssetPurpose(req.Kind), PathParams{
		UploadID: req.UploadID,
		FileName: req.FileName,
	})
	if err != nil {
		return services.UploadURL{}, err
	}

	signed, err := u.client.SignedUploadURL(ctx, u.bucket, objectKey, UploadOptions{
		Method:              httpMethodPut,
		ContentType:         req.ContentType,
		AllowedContentTypes: services.AllowedUploadContentTypes(req.Kind),
		MaxSize:             u.limits[req.Kind],
		ExpiresIn:           u.expiry,
	})
	if err != nil {
		return services.UploadURL{}, err
	}

	return services.UploadURL{
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		PublicURL: u.publicURL(objectKey),
		ObjectKey: objectKey,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (u *MediaUploader) publicURL(objectKey string) string {
	segments := strings.Split(objectKey, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s", u.baseURL, strings.Join(segments, "/"))
}
