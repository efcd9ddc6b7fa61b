package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, WithToken("tok"))
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data interface{}) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(Response{Code: code, Msg: msg, Data: raw})
}

func TestPullMessages(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/msg/pull", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "si_a:b", r.URL.Query().Get("conversation_id"))
		assert.Equal(t, "11", r.URL.Query().Get("begin_seq"))
		assert.Equal(t, "20", r.URL.Query().Get("end_seq"))
		writeEnvelope(w, 0, "success", PullMessagesResponse{
			Messages: []*MessageInfo{{Id: 7, Seq: 12, SenderId: "a", Content: MessageContent{Text: "hey"}}},
			MaxSeq:   20,
		})
	})

	resp, err := c.PullMessages(context.Background(), "si_a:b", 11, 20, 10)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, int64(7), resp.Messages[0].Id)
	assert.Equal(t, "hey", resp.Messages[0].Content.Text)
	assert.Equal(t, int64(20), resp.MaxSeq)
}

func TestSendMessageBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tmp_1", req.ClientMsgId)
		writeEnvelope(w, 0, "success", MessageInfo{Id: 3, ClientMsgId: req.ClientMsgId, SendAt: 1000})
	})

	info, err := c.SendMessage(context.Background(), &SendMessageRequest{ClientMsgId: "tmp_1", RecvId: "b", SessionType: 1, MsgType: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Id)
}

func TestAPIErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversation/archive":
			writeEnvelope(w, CodeConvNotFound, "conversation not found", nil)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	err := c.SetConversationArchived(context.Background(), "sg_1", true)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.GetConversationList(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	var apiErr *Error
	assert.True(t, errors.As(err, &apiErr))
}

func TestSetToken(t *testing.T) {
	var (
		mu  sync.Mutex
		got string
	)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Header.Get("Authorization")
		mu.Unlock()
		writeEnvelope(w, 0, "success", MaxSeqResponse{MaxSeq: 4})
	})

	c.SetToken("next")
	seq, err := c.GetMaxSeq(context.Background(), "sg_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer next", got)
}

func TestGetUsersInfoBatches(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	seen := func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), batches...)
	}
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req GetUsersInfoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		batches = append(batches, len(req.UserIds))
		mu.Unlock()
		infos := make([]*UserInfo, 0, len(req.UserIds))
		for _, id := range req.UserIds {
			infos = append(infos, &UserInfo{Id: id})
		}
		writeEnvelope(w, 0, "success", infos)
	})

	ids := make([]string, 0, 250)
	for i := 0; i < 250; i++ {
		ids = append(ids, "u"+strconv.Itoa(i))
	}
	infos, err := c.GetUsersInfo(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, infos, 250)
	assert.Equal(t, []int{100, 100, 50}, seen())

	infos, err = c.GetUsersInfo(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Len(t, seen(), 3)
}
