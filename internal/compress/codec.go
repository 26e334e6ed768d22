package compress

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	_ "image/gif"
	_ "image/png"
)

// ErrInvalidImage marks a source file that cannot be decoded as an image.
// The worker treats these as corrupt downloads and removes them.
var ErrInvalidImage = errors.New("invalid image file")

// Codec re-encodes the image at src into dst at the given JPEG quality.
type Codec func(src, dst string, quality int) error

// JPEGCodec decodes any registered image format and writes a JPEG.
func JPEGCodec(src, dst string, quality int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidImage, src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: quality}); err != nil {
		out.Close()    //nolint:errcheck
		os.Remove(dst) //nolint:errcheck
		return err
	}
	return out.Close()
}
