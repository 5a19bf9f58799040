package libgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Message is an email message.
type Message struct {
	ID               string       `json:"id,omitempty"`
	Subject          string       `json:"subject,omitempty"`
	Body             *ItemBody    `json:"body,omitempty"`
	BodyPreview      string       `json:"bodyPreview,omitempty"`
	From             *Recipient   `json:"from,omitempty"`
	ToRecipients     []*Recipient `json:"toRecipients,omitempty"`
	CcRecipients     []*Recipient `json:"ccRecipients,omitempty"`
	ReceivedDateTime *time.Time   `json:"receivedDateTime,omitempty"`
	HasAttachments   bool         `json:"hasAttachments,omitempty"`
	Importance       string       `json:"importance,omitempty"`
	IsRead           bool         `json:"isRead,omitempty"`
	ConversationID   string       `json:"conversationId,omitempty"`
	WebLink          string       `json:"webLink,omitempty"`
}

// ItemBody is the body of a message or event.
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Recipient wraps an email address.
type Recipient struct {
	EmailAddress *EmailAddress `json:"emailAddress,omitempty"`
}

// EmailAddress is a name/address pair.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// ListMessagesOptions filters a mailbox listing.
type ListMessagesOptions struct {
	FolderID string     // empty = all messages
	Top      int        // 0 = 25
	Since    *time.Time // receivedDateTime >= Since
	Until    *time.Time // receivedDateTime < Until
	Unread   bool       // only unread messages
}

type messagePage struct {
	Value    []*Message `json:"value"`
	NextLink string     `json:"@odata.nextLink,omitempty"`
}

// ListMessages retrieves messages from the user's mailbox, newest first.
func (c *Client) ListMessages(ctx context.Context, opts *ListMessagesOptions) ([]*Message, error) {
	if opts == nil {
		opts = &ListMessagesOptions{}
	}

	path := "/me/messages"
	if opts.FolderID != "" {
		path = fmt.Sprintf("/me/mailFolders/%s/messages", url.PathEscape(opts.FolderID))
	}

	top := opts.Top
	if top <= 0 {
		top = 25
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", top))
	params.Set("$orderby", "receivedDateTime desc")

	var filters []string
	if opts.Since != nil {
		filters = append(filters, fmt.Sprintf("receivedDateTime ge %s", opts.Since.UTC().Format(time.RFC3339)))
	}
	if opts.Until != nil {
		filters = append(filters, fmt.Sprintf("receivedDateTime lt %s", opts.Until.UTC().Format(time.RFC3339)))
	}
	if opts.Unread {
		filters = append(filters, "isRead eq false")
	}
	if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
	}

	data, err := c.Get(ctx, path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var mp messagePage
	if err := json.Unmarshal(data, &mp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	return mp.Value, nil
}

// GetMessage retrieves a single message by id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}

	data, err := c.Get(ctx, fmt.Sprintf("/me/messages/%s", url.PathEscape(messageID)))
	if err != nil {
		return nil, err
	}

	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &message, nil
}
