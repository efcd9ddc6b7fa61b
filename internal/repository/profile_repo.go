package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

// GroupProfile is the display data of a group conversation
type GroupProfile struct {
	Name    string
	Avatar  string
	Members []entity.Participant
}

// ProfileRepo resolves participant names and avatars through a bounded TTL cache
type ProfileRepo struct {
	api    Upstream
	users  *expirable.LRU[string, entity.Participant]
	groups *expirable.LRU[string, *GroupProfile]
}

// NewProfileRepo creates a new ProfileRepo
func NewProfileRepo(api Upstream, size int, ttl time.Duration) *ProfileRepo {
	if size <= 0 {
		size = 1024
	}
	return &ProfileRepo{
		api:    api,
		users:  expirable.NewLRU[string, entity.Participant](size, nil, ttl),
		groups: expirable.NewLRU[string, *GroupProfile](size, nil, ttl),
	}
}

// Users resolves every id; ids the API cannot resolve map to a bare participant
func (r *ProfileRepo) Users(ctx context.Context, userIds []string) (map[string]entity.Participant, error) {
	out := make(map[string]entity.Participant, len(userIds))
	missing := make([]string, 0, len(userIds))
	for _, id := range userIds {
		if _, seen := out[id]; seen || id == "" {
			continue
		}
		if p, ok := r.users.Get(id); ok {
			out[id] = p
			continue
		}
		out[id] = entity.Participant{UserId: id}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	infos, err := r.api.GetUsersInfo(ctx, missing)
	if err != nil {
		return out, wrapUpstream(err)
	}
	for _, info := range infos {
		p := entity.Participant{UserId: info.Id, Nickname: info.Nickname, Avatar: info.Avatar}
		r.users.Add(info.Id, p)
		out[info.Id] = p
	}
	return out, nil
}

// Group resolves a group's name, avatar and members
func (r *ProfileRepo) Group(ctx context.Context, groupId string) (*GroupProfile, error) {
	if gp, ok := r.groups.Get(groupId); ok {
		return gp, nil
	}

	info, err := r.api.GetGroupInfo(ctx, groupId)
	if err != nil {
		return nil, wrapUpstream(err)
	}
	members, err := r.api.GetGroupMembers(ctx, groupId)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserId)
	}
	// partial profiles are still better than none
	users, _ := r.Users(ctx, ids)

	gp := &GroupProfile{
		Name:    info.Name,
		Avatar:  info.Avatar,
		Members: make([]entity.Participant, 0, len(members)),
	}
	for _, m := range members {
		p := users[m.UserId]
		p.UserId = m.UserId
		if m.GroupNickname != "" {
			p.Nickname = m.GroupNickname
		}
		if m.GroupAvatar != "" {
			p.Avatar = m.GroupAvatar
		}
		gp.Members = append(gp.Members, p)
	}

	r.groups.Add(groupId, gp)
	return gp, nil
}

// Forget drops cached profiles, used when the session user changes
func (r *ProfileRepo) Forget() {
	r.users.Purge()
	r.groups.Purge()
}

// Presence fetches the current presence of userIds; it is not cached
func (r *ProfileRepo) Presence(ctx context.Context, userIds []string) ([]*entity.Presence, error) {
	if len(userIds) == 0 {
		return nil, nil
	}
	statuses, err := r.api.GetUsersOnlineStatus(ctx, userIds)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	now := time.Now()
	out := make([]*entity.Presence, 0, len(statuses))
	for _, st := range statuses {
		p := &entity.Presence{UserId: st.UserId, Status: entity.PresenceOffline, LastSeen: now}
		switch st.Status {
		case constant.StatusOnline:
			p.Status = entity.PresenceOnline
		case constant.StatusAway:
			p.Status = entity.PresenceAway
		}
		out = append(out, p)
	}
	return out, nil
}
