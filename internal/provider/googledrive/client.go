package googledrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/provider"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://www.googleapis.com/drive/v3"

const folderMimeType = "application/vnd.google-apps.folder"

// Client is a thin wrapper around the Google Drive v3 files API, scoped to
// the audio subset the cache core cares about.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &Client{
		httpClient: oauth2.NewClient(context.Background(), tokenSource),
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a fake API.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")

	return c
}

type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type fileList struct {
	Files []driveFile `json:"files"`
}

// List returns the folders and audio files directly under parentID.
func (c *Client) List(ctx context.Context, parentID string) ([]provider.RemoteFile, error) {
	logger := logctx.LoggerFromContext(ctx).With("parent_id", parentID)

	if parentID == "" {
		parentID = "root"
	}

	query := fmt.Sprintf(
		"(mimeType='%s' or mimeType contains 'audio/') and '%s' in parents and trashed=false",
		folderMimeType, parentID,
	)

	params := url.Values{}
	params.Set("q", query)
	params.Set("pageSize", "100")
	params.Set("fields", "files(id,name,mimeType)")
	params.Set("orderBy", "folder,name")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list files: unexpected status %d", resp.StatusCode)
	}

	var list fileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}

	files := make([]provider.RemoteFile, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, provider.RemoteFile{
			ID:       f.ID,
			Name:     f.Name,
			MimeType: f.MimeType,
			IsFolder: f.MimeType == folderMimeType,
		})
	}

	logger.Debug("listed drive folder", "file_count", len(files))

	return files, nil
}

// DownloadURL returns a media URL fetchable by plain GET. The embedded
// access token bounds its lifetime; when it expires the engine reports a
// network failure and the caller re-resolves.
func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("missing file id")
	}

	params := url.Values{}
	params.Set("alt", "media")
	params.Set("access_token", c.token)

	return c.baseURL + "/files/" + url.PathEscape(id) + "?" + params.Encode(), nil
}

func (c *Client) Source() catalog.Source {
	return catalog.SourceGoogleDrive
}
