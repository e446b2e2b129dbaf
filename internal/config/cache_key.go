package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// GradeChannel returns the Redis PubSub channel carrying grade updates for one user and problem.
func (r *CacheKeyStruct) GradeChannel(userID, problemID int) string {
	return fmt.Sprintf("user:%d:problem:%d:grade", userID, problemID)
}

// BridgeSessionKey returns the cache key listing a user's open bridge sessions.
func (r *CacheKeyStruct) BridgeSessionKey(userID int) string {
	return fmt.Sprintf("user:%d:bridge_sessions", userID)
}

var CacheKey = NewCacheKeyStruct()
