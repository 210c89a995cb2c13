// Package images stores uploaded pictures and their thumbnails.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxFileSize = 5 << 20
	DefaultMaxPixels   = 40_000_000
	thumbnailQuality   = 85
	defaultCategory    = "general"
)

var (
	allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	thumbnailSizes    = []int{150, 300, 600}
)

type Upload struct {
	OriginalFilename string            `json:"original_filename"`
	StoredFilename   string            `json:"stored_filename"`
	Category         string            `json:"category"`
	Size             int64             `json:"file_size"`
	URL              string            `json:"url"`
	Thumbnails       map[string]string `json:"thumbnails"`
}

// Object is an opened stored file.
type Object struct {
	io.ReadCloser
	Name        string
	ContentType string
}

type Service struct {
	store     Store
	maxSize   int64
	maxPixels int64
}

func NewService(store Store, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Service{store: store, maxSize: maxSize, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels caps width*height of decodable uploads. n <= 0 keeps the default.
func (s *Service) WithMaxPixels(n int64) *Service {
	if n > 0 {
		s.maxPixels = n
	}
	return s
}

func sanitizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	var b strings.Builder
	for _, r := range category {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultCategory
	}
	return b.String()
}

func objectKey(category, filename string) string {
	return path.Join("images", category, filename)
}

// Upload validates and stores one image, then renders its thumbnails.
// A file that cannot be decoded is kept without thumbnails.
func (s *Service) Upload(ctx context.Context, category, filename string, size int64, r io.Reader) (*Upload, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, apperr.Validation(fmt.Sprintf("file type %q is not allowed", ext))
	}
	if size > s.maxSize {
		return nil, apperr.Validation(fmt.Sprintf("file is larger than %d bytes", s.maxSize))
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "could not read upload")
	}
	if int64(len(data)) > s.maxSize {
		return nil, apperr.Validation(fmt.Sprintf("file is larger than %d bytes", s.maxSize))
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	// compressed images can be tiny on the wire and huge once decoded
	cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	decodable := cfgErr == nil
	if decodable && int64(cfg.Width)*int64(cfg.Height) > s.maxPixels {
		return nil, apperr.Validation(fmt.Sprintf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, s.maxPixels))
	}

	category = sanitizeCategory(category)
	base := uuid.NewString()
	stored := base + ext
	key := objectKey(category, stored)
	if err := s.store.Put(ctx, key, data, contentType(stored)); err != nil {
		return nil, apperr.Internal(err, "failed to store image")
	}

	upload := &Upload{
		OriginalFilename: filename,
		StoredFilename:   stored,
		Category:         category,
		Size:             int64(len(data)),
		URL:              s.store.URL(key),
		Thumbnails:       map[string]string{},
	}

	if !decodable {
		log.WithError(cfgErr).WithField("key", key).Warn("image could not be decoded, skipping thumbnails")
		return upload, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("image could not be decoded, skipping thumbnails")
		return upload, nil
	}
	for _, edge := range thumbnailSizes {
		label := fmt.Sprintf("%dx%d", edge, edge)
		thumbKey := objectKey(category, fmt.Sprintf("%s_%s.jpg", base, label))
		encoded, err := encodeThumbnail(img, edge, edge)
		if err != nil {
			log.WithError(err).WithField("key", thumbKey).Warn("thumbnail failed")
			continue
		}
		if err := s.store.Put(ctx, thumbKey, encoded, "image/jpeg"); err != nil {
			log.WithError(err).WithField("key", thumbKey).Warn("thumbnail upload failed")
			continue
		}
		upload.Thumbnails[label] = s.store.URL(thumbKey)
	}

	log.WithField("url", upload.URL).Info("image uploaded")
	return upload, nil
}

// fitInside scales w x h down to fit the box, never up.
func fitInside(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		nh := h * maxW / w
		if nh < 1 {
			nh = 1
		}
		return maxW, nh
	}
	nw := w * maxH / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxH
}

func encodeThumbnail(img image.Image, maxW, maxH int) ([]byte, error) {
	b := img.Bounds()
	w, h := fitInside(b.Dx(), b.Dy(), maxW, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." &&
		!strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Service) open(ctx context.Context, category, filename string) (*Object, error) {
	rc, err := s.store.Get(ctx, objectKey(category, filename))
	if err == ErrNotFound {
		return nil, apperr.NotFound("image not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to read image")
	}
	return &Object{ReadCloser: rc, Name: filename, ContentType: contentType(filename)}, nil
}

// Open returns a stored image. Callers must close it.
func (s *Service) Open(ctx context.Context, category, filename string) (*Object, error) {
	if !validSegment(category) || !validSegment(filename) {
		return nil, apperr.Validation("invalid image path")
	}
	return s.open(ctx, category, filename)
}

// OpenThumbnail returns the thumbnail of filename with the given "WxH" size.
func (s *Service) OpenThumbnail(ctx context.Context, category, filename, size string) (*Object, error) {
	if !validSegment(category) || !validSegment(filename) {
		return nil, apperr.Validation("invalid image path")
	}
	w, h, ok := parseSize(size)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("invalid thumbnail size %q", size))
	}
	base := strings.TrimSuffix(filename, path.Ext(filename))
	return s.open(ctx, category, fmt.Sprintf("%s_%dx%d.jpg", base, w, h))
}

func parseSize(size string) (int, int, bool) {
	parts := strings.Split(size, "x")
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
