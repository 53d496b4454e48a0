// Package filesvc stores uploaded files on the local disk.
package filesvc

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/family"
)

const (
	photosDir   = "photos"
	photoWidth  = 512
	photoHeight = 512
	jpegQuality = 85
)

var (
	ErrInvalidImage = errors.New("the uploaded file is not a valid image")

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)
)

// LocalStore keeps the files under a media directory.
// Paths handed out are relative to that directory.
type LocalStore struct {
	root string
}

var _ family.PhotoStore = (*LocalStore)(nil) // interface compliance check

func NewLocalStore(mediaDir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(mediaDir, photosDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media directory")
	}
	return &LocalStore{root: mediaDir}, nil
}

func uniqueName(name string) string {
	return fmt.Sprintf("%s-%s-%s.jpg",
		unsafeChars.ReplaceAllString(name, "_"),
		time.Now().UTC().Format("20060102"),
		uuid.New().String()[:8],
	)
}

// StorePhoto decodes the image read from r, fits it in a 512x512 box and
// saves it as JPEG.
func (s *LocalStore) StorePhoto(ctx context.Context, name string, r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", core.NewValidationError(ErrInvalidImage, core.FieldError{Field: "photo", Error: ErrInvalidImage.Error()})
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}

	fitted := imaging.Fit(img, photoWidth, photoHeight, imaging.Lanczos)
	rel := filepath.ToSlash(filepath.Join(photosDir, uniqueName(name)))
	if err = imaging.Save(fitted, s.abs(rel), imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", errors.Wrap(err, "saving photo")
	}
	return rel, nil
}

func (s *LocalStore) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *LocalStore) checkPath(rel string) error {
	clean := filepath.ToSlash(filepath.Clean(rel))
	if clean != rel || strings.HasPrefix(clean, "../") || filepath.IsAbs(rel) {
		return errors.Errorf("invalid media path %q", rel)
	}
	return nil
}

func (s *LocalStore) OpenPhoto(_ context.Context, rel string) (io.ReadCloser, error) {
	if err := s.checkPath(rel); err != nil {
		return nil, err
	}
	f, err := os.Open(s.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("photo")
		}
		return nil, errors.Wrap(err, "opening photo")
	}
	return f, nil
}

func (s *LocalStore) DeletePhoto(_ context.Context, rel string) error {
	if err := s.checkPath(rel); err != nil {
		return err
	}
	if err := os.Remove(s.abs(rel)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting photo")
	}
	return nil
}
