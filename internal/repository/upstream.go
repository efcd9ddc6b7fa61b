package repository

import (
	"context"

	"github.com/mbeoliero/nexosync/sdk"
)

// Upstream is the subset of the IM API client used by the repositories
type Upstream interface {
	GetConversationList(ctx context.Context) ([]*sdk.ConversationInfo, error)
	PullMessages(ctx context.Context, conversationId string, beginSeq, endSeq int64, limit int) (*sdk.PullMessagesResponse, error)
	GetMaxSeq(ctx context.Context, conversationId string) (int64, error)
	SendMessage(ctx context.Context, req *sdk.SendMessageRequest) (*sdk.MessageInfo, error)
	MarkRead(ctx context.Context, conversationId string, readSeq int64) error
	SetConversationArchived(ctx context.Context, conversationId string, archived bool) error
	DeleteMessage(ctx context.Context, conversationId string, serverMsgId int64) error
	GetUsersInfo(ctx context.Context, userIds []string) ([]*sdk.UserInfo, error)
	GetGroupInfo(ctx context.Context, groupId string) (*sdk.GroupInfo, error)
	GetGroupMembers(ctx context.Context, groupId string) ([]*sdk.GroupMember, error)
	GetUsersOnlineStatus(ctx context.Context, userIds []string) ([]*sdk.OnlineStatus, error)
}

var _ Upstream = (*sdk.Client)(nil)
