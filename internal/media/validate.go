package media

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/domain"
)

var allowedTypes = map[string]domain.MediaKind{
	"image/jpeg":      domain.MediaImage,
	"image/jpg":       domain.MediaImage,
	"image/png":       domain.MediaImage,
	"image/gif":       domain.MediaImage,
	"image/webp":      domain.MediaImage,
	"video/mp4":       domain.MediaVideo,
	"video/quicktime": domain.MediaVideo,
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
}

func extFor(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return ".bin"
}

// ContentType detects the media type from the file's leading bytes. The
// type the client declared for the part is not trusted.
func ContentType(data []byte) string {
	ct, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if ct == "application/octet-stream" && isQuickTime(data) {
		return "video/quicktime"
	}
	return ct
}

// isQuickTime reports an ISO base media file with the "qt  " major brand.
func isQuickTime(data []byte) bool {
	return len(data) >= 12 && string(data[4:8]) == "ftyp" && string(data[8:12]) == "qt  "
}

// CheckSize rejects empty files and files over maxBytes.
func CheckSize(size, maxBytes int64) error {
	if size <= 0 {
		return apperr.Field("media", "file is empty")
	}
	if maxBytes > 0 && size > maxBytes {
		return apperr.Field("media", fmt.Sprintf("file exceeds %d MB", maxBytes/(1024*1024)))
	}
	return nil
}

// Classify maps contentType to a media kind and checks it agrees with the
// mediaType the client declared, when one was given.
func Classify(contentType, declared string) (domain.MediaKind, error) {
	kind, ok := allowedTypes[contentType]
	if !ok {
		return "", apperr.Field("media", "unsupported file type "+contentType)
	}
	if strings.TrimSpace(declared) == "" {
		return kind, nil
	}
	want, err := domain.ParseMediaKind(declared)
	if err != nil {
		return "", err
	}
	if want != kind {
		return "", apperr.Field("mediaType", fmt.Sprintf("declared %s but file is %s", want, kind))
	}
	return kind, nil
}
