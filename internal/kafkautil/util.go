// Package kafkautil holds Kafka settings shared by the ingest consumer and
// the replication sink.
package kafkautil

import (
	"strings"
	"time"
)

const (
	// ReadTimeout is the longest a fetch waits for MinBytes to arrive.
	ReadTimeout = 1 * time.Second

	// WriteTimeout bounds one produce request.
	WriteTimeout = 10 * time.Second
)

// ParseBrokers parses a comma-separated broker list and trims whitespace.
// Empty entries are skipped.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}
