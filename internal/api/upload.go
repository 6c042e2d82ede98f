package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/freeoffice/fieldcam/internal/models"
)

const DefaultSubDirectory = "RequestAttachment"

var ErrMalformedResponse = errors.New("upload succeeded but response has no publicPath")

// UploadRejectedError is returned when the file endpoint answers non-2xx
type UploadRejectedError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("upload failed: %s - %s", e.Status, e.Body)
}

// UploadResponse is the JSON body of a successful upload
type UploadResponse struct {
	PublicPath string `json:"publicPath"`
}

// UploadPublicFile posts file to the public upload endpoint tagged with
// subDirectory
func (c *Client) UploadPublicFile(ctx context.Context, file models.File, subDirectory string) (UploadResponse, error) {
	if subDirectory == "" {
		subDirectory = DefaultSubDirectory
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="File"; filename="%s"`, escapeQuotes(file.Name)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return UploadResponse{}, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.WriteField("SubDirectory", subDirectory); err != nil {
		return UploadResponse{}, fmt.Errorf("failed to write sub-directory: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, &buf)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "*/*")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResponse{}, &UploadRejectedError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var result UploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return UploadResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.PublicPath == "" {
		return UploadResponse{}, ErrMalformedResponse
	}

	slog.Debug("File uploaded", "file", file.Name, "sub_directory", subDirectory, "path", result.PublicPath)
	return result, nil
}

// Upload returns only the public path of an uploaded file
func (c *Client) Upload(ctx context.Context, file models.File, subDirectory string) (string, error) {
	result, err := c.UploadPublicFile(ctx, file, subDirectory)
	if err != nil {
		return "", err
	}
	return result.PublicPath, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
