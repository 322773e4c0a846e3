package mediakind

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	KindVideo = "video"
	KindAudio = "audio"
	KindImage = "image"
	KindText  = "text"
	KindOther = "other"
)

const fallbackContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".ts":   "video/mp2t",
	".ism":  "application/vnd.ms-sstr+xml",
	".ismc": "application/vnd.ms-sstr+xml",
	".mpi":  "application/octet-stream",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".json": "application/json",
	".xml":  "application/xml",
	".vtt":  "text/vtt",
}

// ContentType returns the MIME type for a file name, falling back to the
// system table and then to application/octet-stream.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fallbackContentType
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return fallbackContentType
}

// Detect classifies a file name by the top-level type of its content type.
func Detect(name string) string {
	ct := ContentType(name)
	switch {
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return KindAudio
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "text/"):
		return KindText
	default:
		return KindOther
	}
}
