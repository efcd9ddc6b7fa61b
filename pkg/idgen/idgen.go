package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

// IDGenerator is the interface for generating unique IDs
type IDGenerator interface {
	// NextID generates a new unique ID
	NextID() (string, error)
}

// SonyflakeGenerator produces time-ordered numeric ids
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineID uint16) (*SonyflakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}
	return &SonyflakeGenerator{sf: sf}, nil
}

// NextID generates a new unique ID
func (g *SonyflakeGenerator) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return strconv.FormatUint(id, 10), nil
}

// UUIDGenerator produces random ids with an optional prefix
type UUIDGenerator struct {
	prefix string
}

// NewClientTempIdGenerator creates the generator used for optimistic message ids.
// The prefix keeps them visibly distinct from server ids.
func NewClientTempIdGenerator() *UUIDGenerator {
	return &UUIDGenerator{prefix: constant.ClientTempIdPrefix}
}

// NextID generates a new UUID
func (g *UUIDGenerator) NextID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return g.prefix + id.String(), nil
}

var operationIds = sync.OnceValues(func() (IDGenerator, error) {
	return NewSonyflakeGenerator(1)
})

// NextOperationId returns an id for one request frame, so a request can be traced
// across the engine and the upstream logs. It falls back to a UUID when the
// sonyflake clock is exhausted.
func NextOperationId() string {
	if gen, err := operationIds(); err == nil {
		if id, err := gen.NextID(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}
