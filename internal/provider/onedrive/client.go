package onedrive

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

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin wrapper around the Microsoft Graph drive API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &Client{
		httpClient: oauth2.NewClient(context.Background(), tokenSource),
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a fake API.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")

	return c
}

type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	Folder      *struct{} `json:"folder,omitempty"`
	DownloadURL string    `json:"@microsoft.graph.downloadUrl,omitempty"`
}

type itemList struct {
	Value []driveItem `json:"value"`
}

// List returns the folders and audio files directly under parentID. Graph
// has no server-side audio filter, so non-audio files are dropped here.
func (c *Client) List(ctx context.Context, parentID string) ([]provider.RemoteFile, error) {
	logger := logctx.LoggerFromContext(ctx).With("parent_id", parentID)

	endpoint := c.baseURL + "/me/drive/root/children"
	if parentID != "" && parentID != "root" {
		endpoint = c.baseURL + "/me/drive/items/" + url.PathEscape(parentID) + "/children"
	}

	params := url.Values{}
	params.Set("$select", "id,name,file,folder")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build children request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list children: unexpected status %d", resp.StatusCode)
	}

	var list itemList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode children: %w", err)
	}

	files := make([]provider.RemoteFile, 0, len(list.Value))

	for _, item := range list.Value {
		rf := provider.RemoteFile{
			ID:       item.ID,
			Name:     item.Name,
			IsFolder: item.Folder != nil,
		}

		if item.File != nil {
			rf.MimeType = item.File.MimeType
		}

		if !rf.IsFolder && !strings.HasPrefix(rf.MimeType, "audio/") {
			continue
		}

		files = append(files, rf)
	}

	logger.Debug("listed drive folder", "file_count", len(files))

	return files, nil
}

// DownloadURL resolves the short-lived pre-authenticated download URL for
// the item. Graph returns it on the item resource itself.
func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("missing item id")
	}

	endpoint := c.baseURL + "/me/drive/items/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build item request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get item: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get item: unexpected status %d", resp.StatusCode)
	}

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return "", fmt.Errorf("failed to decode item: %w", err)
	}

	if item.DownloadURL == "" {
		return "", fmt.Errorf("item %s has no download url", id)
	}

	return item.DownloadURL, nil
}

func (c *Client) Source() catalog.Source {
	return catalog.SourceOneDrive
}
