package modality

import (
	"fmt"
	"path"
	"strings"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/pkg/errors"
)

// extension table mirrors the supported corpus formats. Lookup is
// case-insensitive; query and fragment parts of the URI are ignored.
var byExtension = map[string]domain.Modality{
	".txt":      domain.ModalityText,
	".log":      domain.ModalityText,
	".md":       domain.ModalityMarkdown,
	".markdown": domain.ModalityMarkdown,
	".pdf":      domain.ModalityPDF,
	".jpg":      domain.ModalityImage,
	".jpeg":     domain.ModalityImage,
	".png":      domain.ModalityImage,
	".gif":      domain.ModalityImage,
	".bmp":      domain.ModalityImage,
	".svg":      domain.ModalityImage,
	".webp":     domain.ModalityImage,
	".mp3":      domain.ModalityAudio,
	".wav":      domain.ModalityAudio,
	".m4a":      domain.ModalityAudio,
	".flac":     domain.ModalityAudio,
	".ogg":      domain.ModalityAudio,
	".aac":      domain.ModalityAudio,
	".mp4":      domain.ModalityVideo,
	".avi":      domain.ModalityVideo,
	".mov":      domain.ModalityVideo,
	".mkv":      domain.ModalityVideo,
	".webm":     domain.ModalityVideo,
	".flv":      domain.ModalityVideo,
	".json":     domain.ModalityJSON,
	".jsonl":    domain.ModalityJSON,
	".csv":      domain.ModalityCSV,
	".tsv":      domain.ModalityCSV,
}

// Classify maps a URI to its modality by extension. Unknown extensions fail
// with errors.ErrUnsupportedModality; no record is ever created for them.
func Classify(uri string) (domain.Modality, error) {
	ext := strings.ToLower(path.Ext(stripURIParts(uri)))
	if ext == "" {
		return "", fmt.Errorf("%w: no extension in %q", errors.ErrUnsupportedModality, uri)
	}
	m, ok := byExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q in %q", errors.ErrUnsupportedModality, ext, uri)
	}
	return m, nil
}

// Supported reports whether the URI's extension maps to a known modality.
func Supported(uri string) bool {
	_, err := Classify(uri)
	return err == nil
}

func stripURIParts(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return uri
}
