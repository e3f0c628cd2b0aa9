package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultSignedURLExpiry = 15 * time.Minute
	maxSignedURLExpiry     = time.Hour

	httpMethodPut = http.MethodPut

	contentLengthRangeHeader = "x-goog-content-length-range"
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errMethodNotAllowed   = errors.New("storage: HTTP method not allowed for uploads")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errMD5Invalid         = errors.New("storage: content MD5 must be base64 encoded")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// Client signs V4 upload URLs so browsers can PUT media straight into the bucket.
type Client struct {
	signer Signer
	now    func() time.Time
}

type ClientOption func(*Client)

func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	c := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// UploadOptions constrain what the holder of the signed URL may upload.
type UploadOptions struct {
	Method      string
	ContentType string
	ContentMD5  string
	// AllowedContentTypes accepts exact types, "type/*" wildcards or "*".
	AllowedContentTypes []string
	// MaxSize, when positive, is enforced by GCS through the content length range header.
	MaxSize   int64
	ExpiresIn time.Duration
}

// SignedURLResult is what the browser needs to perform the upload. Every entry of Headers
// must be sent with the request or GCS rejects the signature.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

type uploadRequest struct {
	method      string
	contentType string
	md5         string
	expiry      time.Duration
	sizeRange   string
}

func (c *Client) SignedUploadURL(ctx context.Context, bucket, object string, opts UploadOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	if ctx == nil {
		ctx = context.Background()
	}
	bucket, object = strings.TrimSpace(bucket), strings.TrimSpace(object)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	req, err := parseUploadOptions(opts)
	if err != nil {
		return SignedURLResult{}, err
	}

	headers := map[string]string{"Content-Type": req.contentType}
	var signedHeaders []string
	if req.md5 != "" {
		headers["Content-MD5"] = req.md5
	}
	if req.sizeRange != "" {
		headers[contentLengthRangeHeader] = req.sizeRange
		signedHeaders = append(signedHeaders, contentLengthRangeHeader+":"+req.sizeRange)
	}

	expiresAt := c.now().Add(req.expiry)
	signedURL, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         req.method,
		ContentType:    req.contentType,
		MD5:            req.md5,
		Headers:        signedHeaders,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{URL: signedURL, Method: req.method, ExpiresAt: expiresAt, Headers: headers}, nil
}

func parseUploadOptions(opts UploadOptions) (uploadRequest, error) {
	req := uploadRequest{
		method:      strings.ToUpper(strings.TrimSpace(opts.Method)),
		contentType: strings.TrimSpace(opts.ContentType),
		md5:         strings.TrimSpace(opts.ContentMD5),
		expiry:      opts.ExpiresIn,
	}
	switch req.method {
	case "":
		req.method = httpMethodPut
	case http.MethodPut, http.MethodPost:
	default:
		return uploadRequest{}, errMethodNotAllowed
	}

	if req.contentType == "" {
		return uploadRequest{}, errContentTypeMissing
	}
	if len(opts.AllowedContentTypes) > 0 && !contentTypeAllowed(req.contentType, opts.AllowedContentTypes) {
		return uploadRequest{}, errContentTypeDenied
	}

	if req.md5 != "" {
		if _, err := base64.StdEncoding.DecodeString(req.md5); err != nil {
			return uploadRequest{}, errMD5Invalid
		}
	}

	if req.expiry <= 0 {
		req.expiry = defaultSignedURLExpiry
	}
	if req.expiry > maxSignedURLExpiry {
		return uploadRequest{}, errExpiryTooLong
	}

	if opts.MaxSize > 0 {
		req.sizeRange = "0," + strconv.FormatInt(opts.MaxSize, 10)
	}
	return req, nil
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	mediaType := strings.ToLower(contentType)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	for _, pattern := range allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "*" || pattern == mediaType {
			return true
		}
		if family, ok := strings.CutSuffix(pattern, "/*"); ok && family != "" && strings.HasPrefix(mediaType, family+"/") {
			return true
		}
	}
	return false
}
