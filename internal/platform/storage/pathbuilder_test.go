package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		UploadID: "upl_01H",
		FileName: "shirt.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "media/products/upl_01H/shirt.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildReelVideoPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeReelVideo, PathParams{UploadID: "upl_2", FileName: "drop.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "media/reels/upl_2/drop.mp4" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductImage, PathParams{
		UploadID: "../bad",
		FileName: "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
	if _, err := BuildObjectPath("avatar", PathParams{UploadID: "u", FileName: "f"}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
