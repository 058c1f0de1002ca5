package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
)

// Send 发送一条意图并等待一行回复
func Send(ctx context.Context, socketPath, intent string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(intent)); err != nil {
		return "", fmt.Errorf("failed to send intent: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return strings.TrimRight(reply, "\n"), nil
}

// Subscribe 订阅歌词推送，每收到一行调用一次 fn，直到连接断开或 ctx 结束
func Subscribe(ctx context.Context, socketPath string, fn func(line string)) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := fmt.Fprintf(conn, "%s\n", subscribeCommand); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
