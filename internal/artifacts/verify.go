package artifacts

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Verify parses data as a PDF and requires at least one page.
func Verify(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("%w: no pages", ErrInvalidOutput)
	}
	return nil
}
