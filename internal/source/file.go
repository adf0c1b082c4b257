package source

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kikiluvv/quotereel/pkg/util"
)

// File is an input payload handed over by a caller.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
	// Size overrides len(Data) when the payload was too large to load.
	Size int64
}

// Len returns the payload size in bytes.
func (f File) Len() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// AllowedVideoTypes is the video MIME allow-list.
var AllowedVideoTypes = []string{
	"video/mp4",
	"video/webm",
	"video/quicktime",
	"video/x-matroska",
	"video/ogg",
}

var extTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".ogv":  "video/ogg",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// DetectType resolves the MIME type of f: the declared type wins, then the
// file extension, then content sniffing.
func DetectType(f File) string {
	if t := normalizeType(f.MIMEType); t != "" {
		return t
	}
	ext := util.GetExtension(f.Name)
	if t, ok := extTypes[ext]; ok {
		return t
	}
	if t := normalizeType(mime.TypeByExtension(ext)); t != "" {
		return t
	}
	if len(f.Data) > 0 {
		return normalizeType(http.DetectContentType(f.Data))
	}
	return ""
}

// IsAllowedVideo reports whether the MIME type is on the allow-list.
func IsAllowedVideo(mimeType string) bool {
	mimeType = normalizeType(mimeType)
	for _, t := range AllowedVideoTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// ReadFile loads a file from disk. Payloads larger than limit are not read;
// only their size is recorded so validation can reject them.
func ReadFile(path string, limit int64) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	f := File{Name: filepath.Base(path)}
	if limit > 0 && info.Size() > limit {
		f.Size = info.Size()
		f.MIMEType = DetectType(f)
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	f.Data = data
	f.MIMEType = DetectType(f)
	return f, nil
}

func normalizeType(t string) string {
	if t == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	if mt == "application/octet-stream" || mt == "text/plain" {
		return ""
	}
	return mt
}
