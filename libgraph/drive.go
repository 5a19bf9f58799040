package libgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Drive is a OneDrive drive.
type Drive struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	DriveType string      `json:"driveType,omitempty"`
	Quota     *DriveQuota `json:"quota,omitempty"`
	WebURL    string      `json:"webUrl,omitempty"`
}

// DriveQuota is storage quota information.
type DriveQuota struct {
	Total     int64  `json:"total,omitempty"`
	Used      int64  `json:"used,omitempty"`
	Remaining int64  `json:"remaining,omitempty"`
	State     string `json:"state,omitempty"`
}

// DriveItem is a file or folder.
type DriveItem struct {
	ID                   string       `json:"id,omitempty"`
	Name                 string       `json:"name,omitempty"`
	Size                 int64        `json:"size,omitempty"`
	LastModifiedDateTime *time.Time   `json:"lastModifiedDateTime,omitempty"`
	WebURL               string       `json:"webUrl,omitempty"`
	Folder               *FolderFacet `json:"folder,omitempty"`
	File                 *FileFacet   `json:"file,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (d *DriveItem) IsFolder() bool {
	return d.Folder != nil
}

// FolderFacet marks an item as a folder.
type FolderFacet struct {
	ChildCount int32 `json:"childCount,omitempty"`
}

// FileFacet marks an item as a file.
type FileFacet struct {
	MimeType string `json:"mimeType,omitempty"`
}

type driveItemPage struct {
	Value    []*DriveItem `json:"value"`
	NextLink string       `json:"@odata.nextLink,omitempty"`
}

// GetDrive retrieves the user's default drive.
func (c *Client) GetDrive(ctx context.Context) (*Drive, error) {
	data, err := c.Get(ctx, "/me/drive")
	if err != nil {
		return nil, err
	}

	var drive Drive
	if err := json.Unmarshal(data, &drive); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drive: %w", err)
	}

	return &drive, nil
}

// ListDriveItems lists the children of a folder path in the user's
// default drive. An empty path lists the drive root.
func (c *Client) ListDriveItems(ctx context.Context, folderPath string) ([]*DriveItem, error) {
	path := "/me/drive/root/children"
	if folderPath != "" {
		path = fmt.Sprintf("/me/drive/root:/%s:/children", url.PathEscape(folderPath))
	}

	var items []*DriveItem
	next := path
	for page := 0; next != "" && page < maxPages; page++ {
		data, err := c.Get(ctx, next)
		if err != nil {
			return nil, err
		}

		var dp driveItemPage
		if err := json.Unmarshal(data, &dp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal drive items: %w", err)
		}

		items = append(items, dp.Value...)
		next = dp.NextLink
	}

	return items, nil
}

// GetDriveItem retrieves item metadata by id.
func (c *Client) GetDriveItem(ctx context.Context, itemID string) (*DriveItem, error) {
	if itemID == "" {
		return nil, fmt.Errorf("item ID is required")
	}

	data, err := c.Get(ctx, fmt.Sprintf("/me/drive/items/%s", url.PathEscape(itemID)))
	if err != nil {
		return nil, err
	}

	var item DriveItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drive item: %w", err)
	}

	return &item, nil
}
