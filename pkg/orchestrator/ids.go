package orchestrator

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewSessionID returns "<epoch_ms>-<5 chars>".
func NewSessionID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), randomString(5))
}

// NewTaskID returns "task-<epoch_ms>-<8 chars>".
func NewTaskID() string {
	return fmt.Sprintf("task-%d-%s", time.Now().UnixMilli(), randomString(8))
}

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}
