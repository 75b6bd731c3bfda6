// Package kafka holds broker helpers shared by the consumer and producer.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// HealthChecker checks Kafka broker connectivity.
type HealthChecker struct {
	brokers []string
	timeout time.Duration
}

// NewHealthChecker creates a checker for a comma separated broker list.
func NewHealthChecker(brokers string) *HealthChecker {
	return &HealthChecker{
		brokers: SplitBrokers(brokers),
		timeout: 2 * time.Second,
	}
}

// Check returns nil if at least one broker accepts a TCP connection.
func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return errors.New("kafka brokers not configured")
	}

	dialer := net.Dialer{Timeout: h.timeout}
	var lastErr error
	for _, broker := range h.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close() //nolint:errcheck // probe connection
		return nil
	}
	return fmt.Errorf("no kafka brokers reachable: %w", lastErr)
}

// Name returns the check name for health reporting.
func (h *HealthChecker) Name() string {
	return "kafka"
}

// SplitBrokers splits a comma separated broker list, dropping blanks.
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
