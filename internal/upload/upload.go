// Package upload validates and decodes user supplied images before any
// inference work starts.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
)

// MaxSize is the default upload limit (10 MiB).
const MaxSize int64 = 10 << 20

// MaxPixels is the default cap on declared image dimensions. Compressed
// formats can declare far more pixels than their byte size suggests.
const MaxPixels int64 = 178956970

var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

type Kind int

const (
	KindMissingFile Kind = iota + 1
	KindBadExtension
	KindTooLarge
	KindUndecodable
)

func (k Kind) String() string {
	switch k {
	case KindMissingFile:
		return "missing_file"
	case KindBadExtension:
		return "bad_extension"
	case KindTooLarge:
		return "too_large"
	case KindUndecodable:
		return "undecodable"
	}
	return "unknown"
}

// Error is a rejected upload. All kinds are client errors.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the upload error kind of err, or 0.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}

type Validator struct {
	maxSize    int64
	maxPixels  int64
	extensions []string
}

// NewValidator builds a validator; zero limits and an empty extension list
// fall back to the defaults.
func NewValidator(maxSize, maxPixels int64, extensions []string) *Validator {
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if maxPixels <= 0 {
		maxPixels = MaxPixels
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Validator{maxSize: maxSize, maxPixels: maxPixels, extensions: normalized}
}

func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// ValidateFilename checks the extension after the last dot, case-insensitively.
func (v *Validator) ValidateFilename(name string) error {
	if name == "" {
		return &Error{Kind: KindMissingFile, Msg: "No file provided. Please upload JPG, JPEG, or PNG image."}
	}

	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = strings.ToLower(name[i:])
	}
	for _, allowed := range v.extensions {
		if ext == allowed {
			return nil
		}
	}
	return &Error{Kind: KindBadExtension, Msg: "Invalid file format. Please upload JPG, JPEG, or PNG image."}
}

// ValidateSize rejects payloads above the limit.
func (v *Validator) ValidateSize(size int64) error {
	if size > v.maxSize {
		return &Error{
			Kind: KindTooLarge,
			Msg:  fmt.Sprintf("File too large. Maximum size is %.1f MB", float64(v.maxSize)/(1024*1024)),
		}
	}
	return nil
}

// ValidateDimensions rejects images declaring more pixels than the limit.
func (v *Validator) ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return &Error{Kind: KindUndecodable, Msg: "Could not open image file: empty image"}
	}
	if int64(width)*int64(height) > v.maxPixels {
		return &Error{
			Kind: KindTooLarge,
			Msg:  fmt.Sprintf("Image dimensions too large (%dx%d). Maximum is %d pixels", width, height, v.maxPixels),
		}
	}
	return nil
}

// Decode reads at most one byte past the limit, checks the declared
// dimensions from the header and only then decodes the pixels.
func (v *Validator) Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, v.maxSize+1))
	if err != nil {
		return nil, "", &Error{Kind: KindUndecodable, Msg: "Could not read image file", Err: err}
	}
	if err := v.ValidateSize(int64(len(data))); err != nil {
		return nil, "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &Error{Kind: KindUndecodable, Msg: "Could not open image file", Err: err}
	}
	if err := v.ValidateDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &Error{Kind: KindUndecodable, Msg: "Could not open image file", Err: err}
	}
	if b := img.Bounds(); b.Empty() {
		return nil, "", &Error{Kind: KindUndecodable, Msg: "Could not open image file: empty image"}
	}
	return img, format, nil
}
