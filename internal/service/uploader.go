package service

import "context"

// FileUploader stores an attachment and returns a public URL for it.
type FileUploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}
