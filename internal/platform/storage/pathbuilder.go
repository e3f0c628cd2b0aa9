package storage

import (
	"fmt"
	"path"
	"strings"
)

// AssetPurpose selects the object layout for an uploaded asset.
type AssetPurpose string

const (
	PurposeProductImage AssetPurpose = "product-image"
	PurposeReelVideo    AssetPurpose = "reel-video"
)

// PathParams identify a single upload.
type PathParams struct {
	UploadID string
	FileName string
}

var objectPrefixes = map[AssetPurpose]string{
	PurposeProductImage: "media/products",
	PurposeReelVideo:    "media/reels",
}

// BuildObjectPath lays uploads out as <prefix>/<uploadID>/<fileName>. The upload id keeps
// two files with the same name from overwriting each other.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	prefix, ok := objectPrefixes[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	uploadID, err := objectSegment("upload id", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := objectSegment("file name", params.FileName)
	if err != nil {
		return "", err
	}
	return path.Join(prefix, uploadID, fileName), nil
}

func objectSegment(label, raw string) (string, error) {
	segment := strings.TrimSpace(raw)
	switch {
	case segment == "":
		return "", fmt.Errorf("storage: %s is required", label)
	case strings.ContainsAny(segment, `/\`), strings.Contains(segment, ".."):
		return "", fmt.Errorf("storage: %s %q is not a single path segment", label, segment)
	}
	return segment, nil
}
