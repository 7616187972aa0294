// HTTP publish client: the network boundary between the draft workspace and
// the server-side commit writer.

package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server/dto"
)

// Client implements gitstore.Committer over POST /api/publish. The server
// owns the branch and repository; CommitRequest.Branch is not sent.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

var _ gitstore.Committer = (*Client)(nil)

// NewClient creates a publish client for a pagewright server.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Commit submits the batch and decodes the result or the error envelope.
// Errors come back carrying the same machine-readable codes the server-side
// writer produces, so callers behave identically on both sides of the wire.
func (c *Client) Commit(ctx context.Context, req gitstore.CommitRequest) (*gitstore.CommitResult, error) {
	wire := dto.PublishRequest{
		Message:         req.Message,
		ExpectedHeadSHA: req.ExpectedHeadSHA,
		Writes:          make([]dto.FileWrite, len(req.Writes)),
		Deletes:         req.Deletes,
	}
	for i, fw := range req.Writes {
		w := dto.FileWrite{Path: fw.Path, Encoding: fw.Encoding}
		if fw.Encoding == dto.EncodingBase64 {
			w.Content = base64.StdEncoding.EncodeToString(fw.Content)
		} else {
			w.Encoding = dto.EncodingUTF8
			w.Content = string(fw.Content)
		}
		wire.Writes[i] = w
	}

	body, err := json.Marshal(&wire)
	if err != nil {
		return nil, dto.InternalWithError("failed to encode publish request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/publish", bytes.NewReader(body))
	if err != nil {
		return nil, dto.InternalWithError("failed to build publish request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, dto.Upstream(0, err.Error(), "/api/publish").Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dto.Upstream(resp.StatusCode, "failed to read response", "/api/publish").Wrap(err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope dto.ErrorResponse
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr != nil || envelope.Error.Code == "" {
			return nil, dto.Upstream(resp.StatusCode, string(data), "/api/publish")
		}
		return nil, dto.NewAPIError(resp.StatusCode, envelope.Error.Code, envelope.Error.Message).
			WithDetails(envelope.Error.Details)
	}

	var out dto.PublishResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, dto.Upstream(resp.StatusCode, "malformed publish response", "/api/publish").Wrap(err)
	}
	return &gitstore.CommitResult{
		SHA:     out.Commit.SHA,
		URL:     out.Commit.URL,
		HeadSHA: out.Commit.HeadSHA,
	}, nil
}
