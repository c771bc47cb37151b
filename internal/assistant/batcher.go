package assistant

import (
	"context"
	"fmt"
)

// maxAttachmentsPerMessage caps the attachments carried by a single
// message. The remote API rejects oversized attachment lists, so file
// reviews are split into consecutive batches instead of silently dropping
// files.
const maxAttachmentsPerMessage = 5

// SendFileReviewMessages posts the instruction once per batch of at most
// five file identifiers, annotating each message with the batch's 1-based
// index range. With no files it sends the plain instruction as a single
// message. Returns the id of the last message created.
func (c *Client) SendFileReviewMessages(ctx context.Context, threadID, instruction string, fileIDs []string) (string, error) {
	if len(fileIDs) == 0 {
		return c.CreateMessage(ctx, threadID, instruction)
	}

	var lastID string
	for start := 0; start < len(fileIDs); start += maxAttachmentsPerMessage {
		end := start + maxAttachmentsPerMessage
		if end > len(fileIDs) {
			end = len(fileIDs)
		}
		content := fmt.Sprintf("%s (Archivos %d-%d)", instruction, start+1, end)
		id, err := c.CreateMessageWithAttachments(ctx, threadID, content, fileIDs[start:end])
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}
