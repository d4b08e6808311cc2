package models

import (
	"bytes"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type Attachment struct {
	Filename      string    `json:"filename"`
	UploadedBy    string    `json:"uploadedBy"`
	UploadedAt    time.Time `json:"uploadedAt"`
	Path          string    `json:"path"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	URL           string    `json:"url,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
}

const (
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var attachmentMimeTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	mimeDocx:                   true,
	mimeXlsx:                   true,
	"image/jpeg":               true,
	"image/png":                true,
	"text/csv":                 true,
}

// DetectContentType sniffs data and fixes up the zip-based office formats
// from the file name.
func DetectContentType(filename string, data []byte) string {
	mimeType := http.DetectContentType(data)
	if mimeType == "application/zip" {
		switch strings.ToLower(path.Ext(filename)) {
		case ".docx":
			mimeType = mimeDocx
		case ".xlsx":
			mimeType = mimeXlsx
		}
	}
	if strings.HasPrefix(mimeType, "text/plain") && strings.EqualFold(path.Ext(filename), ".csv") {
		mimeType = "text/csv"
	}
	return mimeType
}

func AllowedAttachmentType(mimeType string) bool {
	return attachmentMimeTypes[mimeType]
}

func IsImage(mimeType string) bool {
	return mimeType == "image/jpeg" || mimeType == "image/png"
}

// SanitizeFileName keeps the base name with a conservative character set.
func SanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var out strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out.WriteRune(r)
		case r == ' ':
			out.WriteRune('_')
		}
	}
	s := strings.Trim(out.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}

// AttachmentObjectPath is attachments/<recordID>/<uuid>_<name>.
func AttachmentObjectPath(recordID, filename string) string {
	return path.Join("attachments", recordID, uuid.New().String()+"_"+SanitizeFileName(filename))
}

func AttachmentPrefix(recordID string) string {
	return "attachments/" + recordID + "/"
}

func ThumbnailObjectPath(objectPath string) string {
	return path.Join(path.Dir(objectPath), "thumbnails", path.Base(objectPath)+".jpg")
}

// MakeThumbnail renders a 200px wide JPEG.
func MakeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
