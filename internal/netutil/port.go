package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// CheckPort reports whether a TCP connection to ip:port succeeds within the
// dial timeout.
func CheckPort(ip string, port int, timeout time.Duration) bool {
	address := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForPort dials ip:port once per second until it is reachable or the
// deadline passes. Context cancellation is respected between attempts.
func WaitForPort(ctx context.Context, ip string, port int, timeout time.Duration) error {
	address := net.JoinHostPort(ip, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if CheckPort(ip, port, 5*time.Second) {
		return nil
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout waiting for %s", address)
			}
			return ctx.Err()
		case <-ticker.C:
			if CheckPort(ip, port, 5*time.Second) {
				return nil
			}
		}
	}
}
