package hub

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	sampleBytes    = 512
	lfsContentType = "application/vnd.git-lfs+json"
	modeLFS        = "lfs"
)

// Upload is a local file destined for RepoPath in the repository.
type Upload struct {
	RepoPath  string
	LocalPath string
	Size      int64
	OID       string
	Sample    string
}

// PrepareUpload hashes the file and captures the sample the hub uses to
// pick an upload mode.
func PrepareUpload(repoPath string, localPath string) (Upload, error) {
	file, openError := os.Open(localPath)
	if openError != nil {
		return Upload{}, fmt.Errorf("open upload: %w", openError)
	}
	defer file.Close()

	hasher := sha256.New()
	sample := make([]byte, sampleBytes)
	sampleLength, readError := io.ReadFull(file, sample)
	if readError != nil && readError != io.EOF && readError != io.ErrUnexpectedEOF {
		return Upload{}, fmt.Errorf("read upload: %w", readError)
	}
	hasher.Write(sample[:sampleLength])
	rest, copyError := io.Copy(hasher, file)
	if copyError != nil {
		return Upload{}, fmt.Errorf("hash upload: %w", copyError)
	}

	return Upload{
		RepoPath:  repoPath,
		LocalPath: localPath,
		Size:      int64(sampleLength) + rest,
		OID:       hex.EncodeToString(hasher.Sum(nil)),
		Sample:    base64.StdEncoding.EncodeToString(sample[:sampleLength]),
	}, nil
}

func (upload Upload) IsLFS(modes map[string]string) bool {
	return modes[upload.RepoPath] == modeLFS
}

// UploadLFS stores the file content in LFS storage. Content the hub already
// has is skipped.
func (client *Client) UploadLFS(ctx context.Context, repoID string, upload Upload) error {
	payload := lfsBatchRequest{
		Operation: "upload",
		Transfers: []string{"basic", "multipart"},
		Objects:   []lfsObject{{OID: upload.OID, Size: upload.Size}},
		HashAlgo:  "sha256",
	}
	requestBody, marshalError := json.Marshal(payload)
	if marshalError != nil {
		return fmt.Errorf("marshal lfs batch: %w", marshalError)
	}

	var response lfsBatchResponse
	batchURL := fmt.Sprintf("%s/datasets/%s.git/info/lfs/objects/batch", client.baseURL, repoID)
	headers := map[string]string{"Accept": lfsContentType, "Content-Type": lfsContentType}
	if err := client.do(ctx, http.MethodPost, batchURL, headers, bytes.NewReader(requestBody), int64(len(requestBody)), true, &response); err != nil {
		return fmt.Errorf("lfs batch for %s: %w", upload.RepoPath, err)
	}
	if len(response.Objects) == 0 {
		return fmt.Errorf("lfs batch for %s returned no objects", upload.RepoPath)
	}

	object := response.Objects[0]
	if object.Error != nil {
		return fmt.Errorf("lfs batch for %s: %d %s", upload.RepoPath, object.Error.Code, object.Error.Message)
	}
	uploadAction, needsUpload := object.Actions["upload"]
	if !needsUpload {
		return nil
	}

	if chunkSize, multipart := uploadAction.Header["chunk_size"]; multipart {
		if err := client.uploadMultipart(ctx, upload, uploadAction, chunkSize); err != nil {
			return fmt.Errorf("lfs multipart upload %s: %w", upload.RepoPath, err)
		}
	} else if err := client.uploadBasic(ctx, upload, uploadAction); err != nil {
		return fmt.Errorf("lfs upload %s: %w", upload.RepoPath, err)
	}

	if verifyAction, needsVerify := object.Actions["verify"]; needsVerify {
		verifyBody, _ := json.Marshal(lfsObject{OID: upload.OID, Size: upload.Size})
		verifyHeaders := map[string]string{"Accept": lfsContentType, "Content-Type": lfsContentType}
		for key, value := range verifyAction.Header {
			verifyHeaders[key] = value
		}
		if err := client.do(ctx, http.MethodPost, verifyAction.Href, verifyHeaders, bytes.NewReader(verifyBody), int64(len(verifyBody)), true, nil); err != nil {
			return fmt.Errorf("lfs verify %s: %w", upload.RepoPath, err)
		}
	}
	return nil
}

func (client *Client) uploadBasic(ctx context.Context, upload Upload, action lfsAction) error {
	file, openError := os.Open(upload.LocalPath)
	if openError != nil {
		return fmt.Errorf("open upload: %w", openError)
	}
	defer file.Close()
	return client.do(ctx, http.MethodPut, action.Href, action.Header, file, upload.Size, !isPresigned(action.Href), nil)
}

type completedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// uploadMultipart sends chunk_size slices to the numbered part URLs in the
// action header and then posts the collected ETags to the action href.
func (client *Client) uploadMultipart(ctx context.Context, upload Upload, action lfsAction, chunkSizeValue string) error {
	chunkSize, parseError := strconv.ParseInt(chunkSizeValue, 10, 64)
	if parseError != nil || chunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size %q", chunkSizeValue)
	}
	partNumbers := make([]int, 0, len(action.Header))
	for key := range action.Header {
		if number, numberError := strconv.Atoi(key); numberError == nil {
			partNumbers = append(partNumbers, number)
		}
	}
	sort.Ints(partNumbers)

	file, openError := os.Open(upload.LocalPath)
	if openError != nil {
		return fmt.Errorf("open upload: %w", openError)
	}
	defer file.Close()

	parts := make([]completedPart, 0, len(partNumbers))
	for index, number := range partNumbers {
		offset := int64(index) * chunkSize
		length := chunkSize
		if offset+length > upload.Size {
			length = upload.Size - offset
		}
		if length <= 0 {
			break
		}
		partURL := action.Header[fmt.Sprintf("%05d", number)]
		if partURL == "" {
			partURL = action.Header[strconv.Itoa(number)]
		}
		etag, partError := client.putPart(ctx, partURL, io.NewSectionReader(file, offset, length), length)
		if partError != nil {
			return fmt.Errorf("part %d: %w", number, partError)
		}
		parts = append(parts, completedPart{PartNumber: number, ETag: etag})
	}

	completion, _ := json.Marshal(struct {
		OID   string          `json:"oid"`
		Parts []completedPart `json:"parts"`
	}{OID: upload.OID, Parts: parts})
	headers := map[string]string{"Accept": lfsContentType, "Content-Type": lfsContentType}
	return client.do(ctx, http.MethodPost, action.Href, headers, bytes.NewReader(completion), int64(len(completion)), true, nil)
}

func (client *Client) putPart(ctx context.Context, partURL string, body io.Reader, length int64) (string, error) {
	request, requestError := http.NewRequestWithContext(ctx, http.MethodPut, partURL, body)
	if requestError != nil {
		return "", fmt.Errorf("create request: %w", requestError)
	}
	request.ContentLength = length
	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return "", fmt.Errorf("call storage: %w", responseError)
	}
	defer response.Body.Close()
	responseBody, _ := io.ReadAll(response.Body)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", &HTTPError{Method: http.MethodPut, URL: redactQuery(partURL), Status: response.StatusCode, Body: string(responseBody)}
	}
	return strings.Trim(response.Header.Get("ETag"), `"`), nil
}

func isPresigned(target string) bool {
	parsed, parseError := url.Parse(target)
	if parseError != nil {
		return false
	}
	query := parsed.Query()
	return query.Get("X-Amz-Signature") != "" || query.Get("Signature") != ""
}

// Commit describes one atomic change to the repository.
type Commit struct {
	Summary     string
	Description string
	Regular     []Upload
	LFS         []Upload
	Deleted     []string
}

// Commit creates the commit described by commit on revision. LFS content
// must already be uploaded.
func (client *Client) Commit(ctx context.Context, repoID string, revision string, commit Commit) (CommitInfo, error) {
	var body bytes.Buffer
	if encodeError := encodeCommit(&body, commit); encodeError != nil {
		return CommitInfo{}, encodeError
	}

	var info CommitInfo
	target := fmt.Sprintf("%s/api/datasets/%s/commit/%s", client.baseURL, repoID, url.PathEscape(revisionOrDefault(revision)))
	headers := map[string]string{"Content-Type": "application/x-ndjson"}
	if err := client.do(ctx, http.MethodPost, target, headers, &body, int64(body.Len()), true, &info); err != nil {
		return CommitInfo{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

func encodeCommit(writer io.Writer, commit Commit) error {
	buffered := bufio.NewWriter(writer)
	encoder := json.NewEncoder(buffered)
	lines := []commitLine{{Key: "header", Value: commitHeader{Summary: commit.Summary, Description: commit.Description}}}
	for _, upload := range commit.Regular {
		content, readError := os.ReadFile(upload.LocalPath)
		if readError != nil {
			return fmt.Errorf("read %s: %w", upload.LocalPath, readError)
		}
		lines = append(lines, commitLine{Key: "file", Value: commitFile{
			Content:  base64.StdEncoding.EncodeToString(content),
			Path:     upload.RepoPath,
			Encoding: "base64",
		}})
	}
	for _, upload := range commit.LFS {
		lines = append(lines, commitLine{Key: "lfsFile", Value: commitLFSFile{
			Path: upload.RepoPath,
			Algo: "sha256",
			OID:  upload.OID,
			Size: upload.Size,
		}})
	}
	for _, path := range commit.Deleted {
		lines = append(lines, commitLine{Key: "deletedFile", Value: commitDeletedFile{Path: path}})
	}
	for _, line := range lines {
		if encodeError := encoder.Encode(line); encodeError != nil {
			return fmt.Errorf("encode commit line: %w", encodeError)
		}
	}
	if flushError := buffered.Flush(); flushError != nil {
		return fmt.Errorf("flush commit: %w", flushError)
	}
	return nil
}
