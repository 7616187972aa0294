package dto

// Encoding identifies how FileWrite.Content is encoded on the wire.
type Encoding string

const (
	// EncodingUTF8 carries content as plain text.
	EncodingUTF8 Encoding = "utf8"
	// EncodingBase64 carries binary content as base64.
	EncodingBase64 Encoding = "base64"
)

// FileWrite is one file creation or replacement in a publish batch.
type FileWrite struct {
	Path     string   `json:"path" jsonschema:"required,description=Logical content path under an allowed root"`
	Encoding Encoding `json:"encoding" jsonschema:"required,enum=utf8,enum=base64"`
	Content  string   `json:"content" jsonschema:"required"`
}

// PublishRequest is one atomic batch of file writes and deletes.
// The whole batch lands as a single commit or not at all.
type PublishRequest struct {
	Message         string      `json:"message,omitempty" jsonschema:"description=Commit message"`
	ExpectedHeadSHA string      `json:"expectedHeadSha,omitempty" jsonschema:"description=Optimistic concurrency check against the branch head"`
	Writes          []FileWrite `json:"writes"`
	Deletes         []string    `json:"deletes,omitempty"`
}
