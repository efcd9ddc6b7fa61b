package entity

// ConnStatus is the lifecycle state of the live connection
type ConnStatus string

const (
	ConnStatusDisconnected     ConnStatus = "disconnected"
	ConnStatusConnecting       ConnStatus = "connecting"
	ConnStatusConnected        ConnStatus = "connected"
	ConnStatusReconnecting     ConnStatus = "reconnecting"
	ConnStatusResyncingRooms   ConnStatus = "resyncing_rooms"
	ConnStatusResyncingHistory ConnStatus = "resyncing_history"
)

// IsUp reports whether a transport is established, resync included
func (s ConnStatus) IsUp() bool {
	switch s {
	case ConnStatusConnected, ConnStatusResyncingRooms, ConnStatusResyncingHistory:
		return true
	}
	return false
}

// Connection is the observable state of the live channel
type Connection struct {
	Status      ConnStatus `json:"status"`
	TransportId string     `json:"transport_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	// Terminal marks a disconnect that needs a fresh credential
	Terminal bool `json:"terminal"`
}
