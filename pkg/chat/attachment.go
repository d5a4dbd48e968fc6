package chat

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxImageSize caps attachments at 8MB, matching the server's request limit.
const maxImageSize = 8 * 1024 * 1024

var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DetectImageMimeType returns the MIME type for an image path based on its
// extension, falling back to content sniffing. Returns an empty string for
// non-image files.
func DetectImageMimeType(path string, data []byte) string {
	if mime, ok := imageMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	if mime := http.DetectContentType(data); strings.HasPrefix(mime, "image/") {
		return mime
	}
	return ""
}

// LoadImage reads an image file and encodes it for the send payload.
func LoadImage(path string) (Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Image{}, err
	}
	if info.Size() > maxImageSize {
		return Image{}, fmt.Errorf("image %s is too large (%d bytes, max %d)", path, info.Size(), maxImageSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, err
	}

	mime := DetectImageMimeType(path, data)
	if mime == "" {
		return Image{}, fmt.Errorf("%s is not a supported image", path)
	}

	return Image{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
	}, nil
}
