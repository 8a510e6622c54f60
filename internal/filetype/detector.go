package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse document family used to route readers and the classifier.
type Kind string

const (
	KindPDF        Kind = "pdf"
	KindPostScript Kind = "postscript"
	KindImage      Kind = "image"
	KindFitz       Kind = "fitz" // other formats MuPDF can open (XPS, EPUB, CBZ)
	KindOther      Kind = "other"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Inkable reports whether Ghostscript can measure ink coverage for the file.
func (i Info) Inkable() bool { return i.Kind == KindPDF || i.Kind == KindPostScript }

// Readable reports whether a document reader can extract page metadata.
func (i Info) Readable() bool { return i.Kind != KindOther }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (Info, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to detect file type: %w", err)
	}

	info := Info{MIMEType: mtype.String(), Extension: mtype.Extension()}
	classify(&info)

	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", filePath).Msg("detected file type")
	return info, nil
}

func classify(info *Info) {
	mimeType := info.MIMEType
	// mimetype may append parameters such as "; charset=binary"
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Description = "PDF document"

	case mimeType == "application/postscript":
		info.Kind = KindPostScript
		info.Description = "PostScript document"

	case mimeType == "image/png", mimeType == "image/jpeg", mimeType == "image/tiff",
		mimeType == "image/bmp", mimeType == "image/gif", mimeType == "image/webp":
		info.Kind = KindImage
		info.Description = "Image file"

	case mimeType == "application/vnd.ms-xpsdocument", mimeType == "application/oxps",
		mimeType == "application/epub+zip", mimeType == "application/vnd.comicbook+zip":
		info.Kind = KindFitz
		info.Description = "MuPDF document"

	default:
		info.Kind = KindOther
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
