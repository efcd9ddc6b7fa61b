package sdk

import "context"

// maxProfileBatch bounds the ids of one batch lookup accepted by the upstream
const maxProfileBatch = 100

// GetUsersInfo gets public profiles, splitting large id lists into batches
func (c *Client) GetUsersInfo(ctx context.Context, userIds []string) ([]*UserInfo, error) {
	return batched(ctx, userIds, func(ctx context.Context, ids []string) ([]*UserInfo, error) {
		var result []*UserInfo
		if err := c.post(ctx, "/user/batch_info", &GetUsersInfoRequest{UserIds: ids}, &result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// GetUsersOnlineStatus gets online status, splitting large id lists into batches
func (c *Client) GetUsersOnlineStatus(ctx context.Context, userIds []string) ([]*OnlineStatus, error) {
	return batched(ctx, userIds, func(ctx context.Context, ids []string) ([]*OnlineStatus, error) {
		var result []*OnlineStatus
		if err := c.post(ctx, "/user/get_users_online_status", &GetUsersOnlineStatusRequest{UserIds: ids}, &result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// GetGroupInfo gets the profile of a group conversation
func (c *Client) GetGroupInfo(ctx context.Context, groupId string) (*GroupInfo, error) {
	var result GroupInfo
	if err := c.get(ctx, "/group/info", map[string]string{"group_id": groupId}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGroupMembers gets the members of a group, used to name group participants
func (c *Client) GetGroupMembers(ctx context.Context, groupId string) ([]*GroupMember, error) {
	var result []*GroupMember
	if err := c.get(ctx, "/group/members", map[string]string{"group_id": groupId}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func batched[T any](ctx context.Context, ids []string, fetch func(context.Context, []string) ([]T, error)) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(ids))
	for start := 0; start < len(ids); start += maxProfileBatch {
		page, err := fetch(ctx, ids[start:min(start+maxProfileBatch, len(ids))])
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}
