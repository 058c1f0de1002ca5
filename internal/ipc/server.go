// Package ipc 通过 unix socket 与界面/状态栏客户端通信。
//
// 客户端发送 "subscribe" 后接收当前歌词行以及之后的每次更新；
// 其他每一行都是一个播放意图，服务端回复一行结果。
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	subscribeCommand = "subscribe"
	writeTimeout     = time.Second
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "ipc").Logger()
	return &l
}

// Handler 处理一行意图并返回一行回复
type Handler func(ctx context.Context, line string) string

type client struct {
	id         string
	conn       net.Conn
	writeMu    sync.Mutex
	subscribed bool
}

func (c *client) writeLine(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(text + "\n"))
	return err
}

type Server struct {
	socketPath   string
	handler      Handler
	listener     net.Listener
	lockFile     *os.File
	lockFilePath string

	clients     map[*client]struct{}
	clientsLock sync.Mutex
	current     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(socketPath string, handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:   socketPath,
		handler:      handler,
		lockFilePath: socketPath + ".lock",
		clients:      make(map[*client]struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Server) checkAndCleanOldLock() {
	content, err := os.ReadFile(s.lockFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger().Warn().Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		logger().Warn().Str("pid_str", pidStr).Msg("Invalid PID in lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	if !isProcessRunning(pid) {
		logger().Info().Int("old_pid", pid).Msg("Process in lock file is not running, removing lock file")
		os.Remove(s.lockFilePath)
		return
	}
	logger().Info().Int("existing_pid", pid).Msg("Another process is still running")
}

// kill(pid, 0) 不发送信号，只检查进程是否存在
func isProcessRunning(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (s *Server) acquireLock() error {
	s.checkAndCleanOldLock()

	// 拿到锁之前不能截断，否则会清掉正在运行的实例写入的 PID
	file, err := os.OpenFile(s.lockFilePath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	s.lockFile = file
	logger().Info().Str("lock_file", s.lockFilePath).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

func (s *Server) releaseLock() {
	if s.lockFile == nil {
		return
	}
	syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	s.lockFile.Close()
	os.Remove(s.lockFilePath)
	logger().Info().Str("lock_file", s.lockFilePath).Msg("Released process lock")
	s.lockFile = nil
}

// ErrAlreadyRunning 另一个实例持有进程锁
var ErrAlreadyRunning = errors.New("another lyric-player instance is already running")

func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.releaseLock()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock()
		return err
	}
	s.listener = listener

	logger().Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger().Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	c := &client{id: uuid.NewString(), conn: conn}
	clog := logger().With().Str("client", c.id).Logger()

	s.clientsLock.Lock()
	s.clients[c] = struct{}{}
	s.clientsLock.Unlock()
	clog.Debug().Msg("Client connected")

	defer func() {
		s.clientsLock.Lock()
		delete(s.clients, c)
		s.clientsLock.Unlock()
		conn.Close()
		clog.Debug().Msg("Client disconnected")
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == subscribeCommand {
			s.clientsLock.Lock()
			c.subscribed = true
			current := s.current
			s.clientsLock.Unlock()
			if err := c.writeLine(current); err != nil {
				clog.Error().Err(err).Msg("Failed to send current lyric")
				return
			}
			continue
		}

		reply := "error: no handler"
		if s.handler != nil {
			reply = s.handler(s.ctx, line)
		}
		if err := c.writeLine(reply); err != nil {
			clog.Error().Err(err).Msg("Failed to write reply")
			return
		}
	}
}

// Broadcast 把一行文本推送给所有订阅的客户端，与上一次相同时跳过
func (s *Server) Broadcast(text string) {
	text = strings.ReplaceAll(text, "\n", " ")

	s.clientsLock.Lock()
	if text == s.current {
		s.clientsLock.Unlock()
		return
	}
	s.current = text
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.subscribed {
			targets = append(targets, c)
		}
	}
	s.clientsLock.Unlock()

	for _, c := range targets {
		if err := c.writeLine(text); err != nil {
			logger().Error().Err(err).Str("client", c.id).Msg("Failed to write to client, removing")
			c.conn.Close()
		}
	}
}

// Current 最近一次广播的文本
func (s *Server) Current() string {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	return s.current
}

func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.clientsLock.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clientsLock.Unlock()
	s.wg.Wait()
	s.releaseLock()
}
