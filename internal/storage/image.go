package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

// SecureMIMETypesExtension lists the image types accepted for product photos and the
// extension each is stored under.
var SecureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	ext, ok := SecureMIMETypesExtension[mimeType]
	return ok, ext
}

// Image is a product photo that passed the content checks and is ready to upload.
type Image struct {
	Content     []byte
	ContentType string
	Ext         string
}

// ReadImage reads at most maxBytes from r and checks the content is an allowed image.
func ReadImage(r io.Reader, maxBytes int64) (*Image, error) {
	content, err := io.ReadAll(NewMaxSizeReader(r, maxBytes))
	if err != nil {
		var limitErr *ReachLimitError
		if errors.As(err, &limitErr) {
			return nil, saleerrors.Validation("image is larger than %s", FormatBytes(limitErr.MaxBytes))
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(content) == 0 {
		return nil, saleerrors.Validation("image is empty")
	}

	mtype := mimetype.Detect(content)
	ok, ext := CheckSecureImageAndGetExtension(mtype.String())
	if !ok {
		return nil, saleerrors.Validation("unsupported image type %s", mtype.String())
	}
	return &Image{Content: content, ContentType: mtype.String(), Ext: ext}, nil
}

// Key names a fresh object under quick-sales/<saleID>/.
func (img *Image) Key(saleID string) string {
	return fmt.Sprintf("quick-sales/%s/%s.%s", saleID, utils.GenerateProductID(), img.Ext)
}
