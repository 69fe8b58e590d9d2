// Package media holds artifact post-processing helpers.
package media

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Thumbnail extracts a first-frame JPEG from raw video bytes using
// ffmpeg. Callers treat failure as non-fatal: a missing thumbnail never
// fails the generation.
func Thumbnail(videoData []byte) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "thumbnail")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	videoPath := filepath.Join(tempDir, "input"+ExtensionFor(videoData))
	if err := os.WriteFile(videoPath, videoData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp video: %w", err)
	}

	thumbPath := filepath.Join(tempDir, "thumb.jpg")
	cmd := exec.Command("ffmpeg",
		"-i", videoPath,
		"-vf", "select=eq(n\\,0)",
		"-frames:v", "1",
		"-q:v", "3",
		"-y", thumbPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	thumb, err := os.ReadFile(thumbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return thumb, nil
}

// ExtensionFor infers a file extension from the payload's magic bytes.
func ExtensionFor(data []byte) string {
	switch contentType := http.DetectContentType(data); contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/webm":
		return ".webm"
	case "video/avi":
		return ".avi"
	default:
		if strings.HasPrefix(contentType, "video/") {
			return ".mp4"
		}
		// mp4 detection often falls through to application/octet-stream;
		// check the ftyp box directly.
		if len(data) > 11 && string(data[4:8]) == "ftyp" {
			return ".mp4"
		}
		return ".bin"
	}
}
