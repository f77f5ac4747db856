// Package media classifies uploads and manages the temporary files a job leaves behind.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the processing path for an upload.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Accepted upload extensions, lowercase with the leading dot.
var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	VideoExtensions = []string{".mp4", ".avi", ".mov"}
)

// ErrUnsupportedType is returned for uploads whose extension is not accepted.
var ErrUnsupportedType = errors.New("unsupported file type")

// Ext returns the lowercase extension of filename including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Classify decides the processing path purely from the file name extension.
func Classify(filename string) (Kind, error) {
	ext := Ext(filename)
	switch {
	case slices.Contains(ImageExtensions, ext):
		return KindImage, nil
	case slices.Contains(VideoExtensions, ext):
		return KindVideo, nil
	case ext == "":
		return KindUnknown, fmt.Errorf("%w: missing extension", ErrUnsupportedType)
	default:
		return KindUnknown, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// ContentType returns the MIME type used when returning media of ext.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
