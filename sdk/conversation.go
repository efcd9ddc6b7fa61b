package sdk

import "context"

// GetConversationList gets all conversations for the current user
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	if err := c.get(ctx, "/conversation/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result ConversationInfo
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks a conversation as read up to a seq
func (c *Client) MarkRead(ctx context.Context, conversationId string, readSeq int64) error {
	req := &MarkReadRequest{
		ConversationId: conversationId,
		ReadSeq:        readSeq,
	}
	return c.post(ctx, "/conversation/mark_read", req, nil)
}

// SetConversationArchived archives or restores a conversation
func (c *Client) SetConversationArchived(ctx context.Context, conversationId string, archived bool) error {
	req := &ArchiveConversationRequest{
		ConversationId: conversationId,
		IsArchived:     archived,
	}
	return c.post(ctx, "/conversation/archive", req, nil)
}
