package adapter

import (
	"context"
	"io"
)

// FileTransport moves batch documents between the process and a provider's
// file store. Temp file lifecycle stays with the caller.
type FileTransport interface {
	// Upload sends a local file and returns the provider file handle.
	Upload(ctx context.Context, localPath, displayName, contentType string) (string, error)

	// UploadReader streams content without touching the filesystem.
	UploadReader(ctx context.Context, displayName, contentType string, r io.Reader) (string, error)

	// Download fetches a provider result document as raw text.
	Download(ctx context.Context, locator string) (string, error)
}
