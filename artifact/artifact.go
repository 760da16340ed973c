// Package artifact stores named bundles of CI files in an object store,
// scoped to a repository and workflow run, and reads them back.
package artifact

import (
	"time"
)

// Artifact describes one stored archive.
type Artifact struct {
	// Name is the artifact name, unique within a scope at any instant.
	Name string `json:"name"`
	// ID is kept for callers that expect a numeric identifier. The object
	// store has none, so it is always 0; Key is the real identity.
	ID int64 `json:"id"`
	// Size is the byte length of the stored archive.
	Size int64 `json:"size"`
	// Digest is the checksum reported by the store. It is opaque.
	Digest string `json:"digest,omitempty"`
	// CreatedAt is set when the store reports a modification time.
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Key       string     `json:"key"`
}

// Scope addresses the artifacts of one workflow run. Owner is optional.
type Scope struct {
	Owner      string `json:"owner,omitempty"`
	Repository string `json:"repository"`
	RunID      string `json:"runId"`
}

// FindOptions selects artifacts outside the client's own run.
type FindOptions struct {
	// FindBy, when set, replaces the client's scope for the call.
	FindBy *Scope
}

// UploadOptions configures Upload.
type UploadOptions struct {
	// CompressionLevel is a deflate level in 0..9, or -1 for the
	// compressor's default. Nil means the default.
	CompressionLevel *int
	// FailIfExists rejects the upload with ErrAlreadyExists when an
	// artifact with the same name is already stored in the scope.
	FailIfExists bool
}

// DownloadOptions configures Download.
type DownloadOptions struct {
	FindOptions
	// Path is the destination directory. Empty means the workspace.
	Path string
}

// ListOptions configures List.
type ListOptions struct {
	FindOptions
	// Latest keeps only the most recent artifact of each name.
	Latest bool
}

// UploadResponse is returned by Upload.
type UploadResponse struct {
	ID     int64  `json:"id"`
	Size   int64  `json:"size"`
	Digest string `json:"digest,omitempty"`
	Key    string `json:"key"`
}

// DownloadResponse is returned by Download.
type DownloadResponse struct {
	DownloadPath string   `json:"downloadPath"`
	Artifact     Artifact `json:"artifact"`
	Files        int      `json:"files"`
	Bytes        int64    `json:"bytes"`
}

// ListResponse is returned by List.
type ListResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// GetResponse is returned by Get.
type GetResponse struct {
	Artifact Artifact `json:"artifact"`
}

// DeleteResponse is returned by Delete.
type DeleteResponse struct {
	ID  int64  `json:"id"`
	Key string `json:"key"`
}
