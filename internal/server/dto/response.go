package dto

// CommitInfo describes the commit produced by a successful publish.
type CommitInfo struct {
	SHA     string `json:"sha"`
	URL     string `json:"url"`
	HeadSHA string `json:"headSha"`
}

// PublishResponse is the success envelope for POST /api/publish.
type PublishResponse struct {
	Commit CommitInfo `json:"commit"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
