package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// NewInstanceID names one replica of service as "service/host:pid:suffix".
// It is stamped on every log line and reported by the admin status route,
// so the two can be correlated when several replicas share a store.
func NewInstanceID(service string) string {
	host, _ := os.Hostname()
	host = strings.ReplaceAll(host, ":", "_")
	if host == "" {
		host = "localhost"
	}
	if service == "" {
		service = "auth"
	}
	return fmt.Sprintf("%s/%s:%d:%s", service, host, os.Getpid(), instanceSuffix())
}

// instanceSuffix separates restarts that reuse a pid, e.g. in containers.
func instanceSuffix() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(b)
}
