package constant

// Session types (upstream IM API)
const (
	SessionTypeSingle = 1 // Single chat
	SessionTypeGroup  = 2 // Group chat
)

// Message types (upstream IM API)
const (
	MsgTypeText   = 1
	MsgTypeImage  = 2
	MsgTypeVideo  = 3
	MsgTypeAudio  = 4
	MsgTypeFile   = 5
	MsgTypeCustom = 100
)

// Online status (upstream IM API)
const (
	StatusOffline = 0
	StatusOnline  = 1
	StatusAway    = 2
)

// PlatformIdWeb is the platform the engine reports when dialing the gateway
const PlatformIdWeb = 5

// Conversation Id prefixes
const (
	SingleConversationPrefix = "si_"
	GroupConversationPrefix  = "sg_"
)

// Client temp id prefix, keeps optimistic ids visibly distinct from server ids
const ClientTempIdPrefix = "tmp_"

// Redis key patterns (without prefix, use RedisKey*() to get full key)
const (
	redisKeyPresence = "presence:%s" // presence:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "nexosync:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// RedisKeyPresence returns the presence key pattern with prefix
func RedisKeyPresence() string { return redisKeyPrefix + redisKeyPresence }
