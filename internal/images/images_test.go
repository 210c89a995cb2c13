package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperr "github.com/theheadmen/studfund/internal/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(t *testing.T, maxSize int64) (*Service, string) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "http://localhost:8080/")
	require.NoError(t, err)
	return NewService(store, maxSize), root
}

func TestUploadWritesThumbnails(t *testing.T) {
	svc, root := newTestService(t, 0)
	data := pngBytes(t, 800, 400)

	up, err := svc.Upload(context.Background(), "Campaigns!", "photo.PNG", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "campaigns", up.Category)
	assert.True(t, strings.HasSuffix(up.StoredFilename, ".png"))
	assert.Equal(t, "http://localhost:8080/api/v1/static/images/campaigns/"+up.StoredFilename, up.URL)
	require.Len(t, up.Thumbnails, 3)

	base := strings.TrimSuffix(up.StoredFilename, ".png")
	expected := map[string][2]int{"150x150": {150, 75}, "300x300": {300, 150}, "600x600": {600, 300}}
	for label, dims := range expected {
		f, err := os.Open(filepath.Join(root, "images", "campaigns", base+"_"+label+".jpg"))
		require.NoError(t, err)
		cfg, err := jpeg.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, dims[0], cfg.Width, label)
		assert.Equal(t, dims[1], cfg.Height, label)
	}

	obj, err := svc.OpenThumbnail(context.Background(), "campaigns", up.StoredFilename, "300x300")
	require.NoError(t, err)
	defer obj.Close()
	assert.Equal(t, "image/jpeg", obj.ContentType)
}

func TestUploadKeepsSmallImages(t *testing.T) {
	svc, _ := newTestService(t, 0)
	data := pngBytes(t, 100, 40)

	up, err := svc.Upload(context.Background(), "", "tiny.png", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "general", up.Category)

	obj, err := svc.OpenThumbnail(context.Background(), "general", up.StoredFilename, "600x600")
	require.NoError(t, err)
	defer obj.Close()
	cfg, err := jpeg.DecodeConfig(obj)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestUploadRejects(t *testing.T) {
	svc, _ := newTestService(t, 64)

	testCases := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"extension", "script.exe", []byte("MZ")},
		{"too large", "big.jpg", bytes.Repeat([]byte{1}, 65)},
		{"empty", "empty.jpg", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), "campaigns", tc.filename, -1, bytes.NewReader(tc.data))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestUploadRejectsOversizedDimensions(t *testing.T) {
	svc, root := newTestService(t, 0)
	svc.WithMaxPixels(1000)
	data := pngBytes(t, 100, 40)

	_, err := svc.Upload(context.Background(), "campaigns", "wide.png", int64(len(data)), bytes.NewReader(data))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "100x40")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is stored for a rejected image")

	small := pngBytes(t, 25, 40)
	up, err := svc.Upload(context.Background(), "campaigns", "small.png", int64(len(small)), bytes.NewReader(small))
	require.NoError(t, err)
	assert.Len(t, up.Thumbnails, 3)
}

func TestUndecodableImageHasNoThumbnails(t *testing.T) {
	svc, _ := newTestService(t, 0)
	up, err := svc.Upload(context.Background(), "campaigns", "broken.jpg", 4, strings.NewReader("junk"))
	require.NoError(t, err)
	assert.Empty(t, up.Thumbnails)

	obj, err := svc.Open(context.Background(), "campaigns", up.StoredFilename)
	require.NoError(t, err)
	defer obj.Close()
	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "junk", string(body))
}

func TestOpenRejectsTraversal(t *testing.T) {
	svc, _ := newTestService(t, 0)

	for _, tc := range [][2]string{{"..", "passwd"}, {"campaigns", "../../etc/passwd"}, {"campaigns", `..\win.ini`}, {"", "a.jpg"}} {
		_, err := svc.Open(context.Background(), tc[0], tc[1])
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), tc)
	}

	_, err := svc.Open(context.Background(), "campaigns", "missing.jpg")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.OpenThumbnail(context.Background(), "campaigns", "missing.jpg", "big")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestFitInside(t *testing.T) {
	testCases := []struct {
		w, h, box    int
		wantW, wantH int
	}{
		{800, 400, 150, 150, 75},
		{400, 800, 300, 150, 300},
		{100, 100, 600, 100, 100},
		{1000, 1, 150, 150, 1},
	}
	for _, tc := range testCases {
		w, h := fitInside(tc.w, tc.h, tc.box, tc.box)
		assert.Equal(t, tc.wantW, w)
		assert.Equal(t, tc.wantH, h)
	}
}
