package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
)

// UploadResult is the terminal artifact of a pipeline run.
type UploadResult struct {
	URL string
}

// Uploader pushes final image bytes to a media host and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (UploadResult, error)
}

// DefaultFilename is the name the media host sees for uploaded patterns.
const DefaultFilename = "pattern.png"

// objectKey builds a unique key for hosts that do not assign their own ids.
func objectKey(filename string) string {
	ext := ".png"
	if e := path.Ext(filename); e != "" {
		ext = e
	}
	return fmt.Sprintf("patterns/%s%s", uuid.NewString(), ext)
}
