package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://huggingface.co"
	DefaultRevision = "main"
	requestTimeout  = 10 * time.Minute
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(baseURL string, token string) *Client {
	normalizedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalizedURL == "" {
		normalizedURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    normalizedURL,
		token:      strings.TrimSpace(token),
	}
}

func (client *Client) BaseURL() string {
	return client.baseURL
}

// WhoAmI returns the account name the token belongs to.
func (client *Client) WhoAmI(ctx context.Context) (string, error) {
	var response whoAmIResponse
	if err := client.doJSON(ctx, http.MethodGet, "/api/whoami-v2", nil, &response); err != nil {
		return "", fmt.Errorf("whoami: %w", err)
	}
	return response.Name, nil
}

// CreateRepo creates a dataset repository. An existing repository is not an
// error.
func (client *Client) CreateRepo(ctx context.Context, repoID string, private bool) error {
	organization, name, splitError := splitRepoID(repoID)
	if splitError != nil {
		return splitError
	}
	payload := createRepoRequest{
		Type:         "dataset",
		Name:         name,
		Organization: organization,
		Private:      private,
	}
	err := client.doJSON(ctx, http.MethodPost, "/api/repos/create", payload, nil)
	if err != nil && !IsStatus(err, http.StatusConflict) {
		return fmt.Errorf("create repo %s: %w", repoID, err)
	}
	return nil
}

// ListFiles lists the files below directory at revision. A missing directory
// yields no entries.
func (client *Client) ListFiles(ctx context.Context, repoID string, revision string, directory string) ([]TreeEntry, error) {
	path := fmt.Sprintf("/api/datasets/%s/tree/%s", repoID, url.PathEscape(revisionOrDefault(revision)))
	if trimmed := strings.Trim(directory, "/"); trimmed != "" {
		path += "/" + trimmed
	}
	path += "?recursive=true"

	entries := make([]TreeEntry, 0)
	err := client.doJSON(ctx, http.MethodGet, path, nil, &entries)
	if IsStatus(err, http.StatusNotFound) {
		return []TreeEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	files := make([]TreeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == "file" {
			files = append(files, entry)
		}
	}
	return files, nil
}

// Preupload asks the hub how each file must be sent: "regular" files go
// inline in the commit, "lfs" files go through the LFS batch API first.
func (client *Client) Preupload(ctx context.Context, repoID string, revision string, uploads []Upload) (map[string]string, error) {
	payload := preuploadRequest{Files: make([]preuploadFile, 0, len(uploads))}
	for _, upload := range uploads {
		payload.Files = append(payload.Files, preuploadFile{
			Path:   upload.RepoPath,
			Sample: upload.Sample,
			Size:   upload.Size,
		})
	}

	var response preuploadResponse
	path := fmt.Sprintf("/api/datasets/%s/preupload/%s", repoID, url.PathEscape(revisionOrDefault(revision)))
	if err := client.doJSON(ctx, http.MethodPost, path, payload, &response); err != nil {
		return nil, fmt.Errorf("preupload: %w", err)
	}

	modes := map[string]string{}
	for _, file := range response.Files {
		modes[file.Path] = file.UploadMode
	}
	for _, upload := range uploads {
		if _, exists := modes[upload.RepoPath]; !exists {
			modes[upload.RepoPath] = "regular"
		}
	}
	return modes, nil
}

func (client *Client) doJSON(ctx context.Context, method string, path string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		requestBody, marshalError := json.Marshal(payload)
		if marshalError != nil {
			return fmt.Errorf("marshal request: %w", marshalError)
		}
		body = bytes.NewReader(requestBody)
		contentType = "application/json"
	}
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return client.do(ctx, method, client.baseURL+path, headers, body, -1, true, out)
}

// do sends one request. authorize adds the bearer token; it is off for
// presigned storage URLs.
func (client *Client) do(ctx context.Context, method string, target string, headers map[string]string, body io.Reader, contentLength int64, authorize bool, out any) error {
	request, requestError := http.NewRequestWithContext(ctx, method, target, body)
	if requestError != nil {
		return fmt.Errorf("create request: %w", requestError)
	}
	if contentLength >= 0 {
		request.ContentLength = contentLength
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	if authorize && client.token != "" {
		request.Header.Set("Authorization", "Bearer "+client.token)
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return fmt.Errorf("call hub: %w", responseError)
	}
	defer response.Body.Close()
	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return fmt.Errorf("read hub response: %w", readError)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &HTTPError{
			Method: method,
			URL:    redactQuery(target),
			Status: response.StatusCode,
			Body:   string(responseBody),
		}
	}
	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if unmarshalError := json.Unmarshal(responseBody, out); unmarshalError != nil {
		return fmt.Errorf("decode hub payload: %w", unmarshalError)
	}
	return nil
}

func splitRepoID(repoID string) (string, string, error) {
	trimmed := strings.Trim(strings.TrimSpace(repoID), "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("repo id is required")
	}
	parts := strings.Split(trimmed, "/")
	switch len(parts) {
	case 1:
		return "", parts[0], nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid repo id %q", repoID)
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid repo id %q", repoID)
	}
}

func revisionOrDefault(revision string) string {
	if strings.TrimSpace(revision) == "" {
		return DefaultRevision
	}
	return strings.TrimSpace(revision)
}

// redactQuery drops query strings so presigned credentials never reach an
// error message.
func redactQuery(target string) string {
	if index := strings.IndexByte(target, '?'); index >= 0 {
		return target[:index]
	}
	return target
}
