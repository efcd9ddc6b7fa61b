package gateway

import "time"

// WebSocket protocol identifiers shared with the upstream gateway
const (
	// Client request identifiers
	WSJoinRoom  = 1101 // Subscribe to a conversation's live events
	WSLeaveRoom = 1102 // Unsubscribe from a conversation
	WSTyping    = 1103 // Typing start/stop

	// Server push identifiers
	WSPushMsg       = 2001 // Server push message
	WSKickOnlineMsg = 2002 // Kick user offline
	WSPushTyping    = 2003 // Peer typing start/stop
	WSPushRead      = 2004 // Peer read receipt
	WSPushDeleted   = 2005 // Message deleted
	WSPushPresence  = 2006 // Peer presence change
	WSDataError     = 3001 // Data error
)

// Timeout constants
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200

	// WriteChannelSize bounds frames queued for the write loop
	WriteChannelSize = 256
)

// Query parameter keys
const (
	QueryToken       = "token"
	QuerySendId      = "send_id"
	QueryPlatformId  = "platform_id"
	QueryOperationId = "operation_id"
	QuerySDKType     = "sdk_type"
)

// SDKTypeGo identifies this engine to the gateway
const SDKTypeGo = "go"
