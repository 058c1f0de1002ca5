// Package app 组装播放引擎、歌词来源、IPC 和状态栏，并管理守护进程的生命周期。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lyric-player/internal/config"
	"lyric-player/internal/ipc"
	"lyric-player/internal/player"
	"lyric-player/internal/prefs"
	"lyric-player/internal/statusbar"
	"lyric-player/internal/transport"
	"lyric-player/pkg/music"
	"lyric-player/pkg/netease"
	"lyric-player/pkg/redis"
)

const (
	prefsSaveDelay = 500 * time.Millisecond
	idleText       = "No music playing..."
)

type App struct {
	cfg *config.Config

	transport *transport.Transport
	engine    *player.Engine
	tracks    music.TrackSource
	redis     *redis.Client
	closers   []io.Closer

	prefs     prefs.Store
	saved     prefs.Preferences
	saveCh    chan struct{}
	saverDone chan struct{}

	ipcServer *ipc.Server
	bar       *statusbar.Bar

	unsubscribe func()
	closeOnce   sync.Once
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := newBackend(ctx, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio backend: %w", err)
	}

	a := &App{
		cfg:       cfg,
		transport: transport.New(backend),
		redis:     newRedis(cfg.Redis),
		saveCh:    make(chan struct{}, 1),
		saverDone: make(chan struct{}),
	}

	ne := netease.NewClient(cfg.Netease.BaseURL, cfg.Netease.Cookie, cfg.Netease.Timeout)
	lyricSource, closer := newLyricSource(ctx, cfg, ne, a.redis)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.tracks = ne
	a.engine = player.New(a.transport, ne, lyricSource, engineOptions(cfg.Playback))
	a.prefs = newPrefsStore(cfg.Prefs, a.redis)

	a.ipcServer = ipc.NewServer(cfg.App.SocketPath, ipc.NewDispatcher(a.engine, a.tracks).Handle)
	a.bar = statusbar.New(statusbar.Options{
		StatusFile: cfg.App.StatusFile,
		Signal:     cfg.App.StatusbarSignal,
		MaxWidth:   cfg.App.StatusMaxWidth,
	})
	return a, nil
}

// Engine 供测试和内嵌使用
func (a *App) Engine() *player.Engine {
	return a.engine
}

// Run 阻塞直到 ctx 结束，然后保存偏好并释放资源
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	a.restorePrefs(ctx)
	a.bar.Start()
	a.unsubscribe = a.engine.Subscribe(a.handleEvent)
	a.show(idleText)

	go a.saveLoop(ctx)

	log.Info().
		Str("socket", a.cfg.App.SocketPath).
		Str("backend", a.cfg.App.Backend).
		Msg("Lyric player running")
	<-ctx.Done()
	<-a.saverDone
	log.Info().Msg("Shutting down")
	return nil
}

func (a *App) restorePrefs(ctx context.Context) {
	p, err := a.prefs.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load preferences, using defaults")
	}
	p.Apply(a.engine)
	a.saved = p.Validate()
}

func (a *App) handleEvent(ev player.Event) {
	switch ev.Type {
	case player.EventProgress:
		return
	case player.EventError:
		if errors.Is(ev.Err, player.ErrTooFewPlayable) {
			a.show("error: " + ev.Err.Error())
			return
		}
	case player.EventState:
		a.requestSave()
	}
	a.show(displayText(a.engine.Snapshot()))
}

func (a *App) show(text string) {
	a.ipcServer.Broadcast(text)
	if err := a.bar.Update(text); err != nil {
		log.Debug().Err(err).Msg("Status bar update failed")
	}
}

func (a *App) requestSave() {
	select {
	case a.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop 合并短时间内的多次状态变化，退出前再保存一次
func (a *App) saveLoop(ctx context.Context) {
	defer close(a.saverDone)
	timer := time.NewTimer(prefsSaveDelay)
	timer.Stop()
	for {
		select {
		case <-a.saveCh:
			timer.Reset(prefsSaveDelay)
		case <-timer.C:
			a.savePrefs()
		case <-ctx.Done():
			timer.Stop()
			a.savePrefs()
			return
		}
	}
}

func (a *App) savePrefs() {
	p := prefs.FromState(a.engine.Snapshot()).Validate()
	if p.Equal(a.saved) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.prefs.Save(ctx, p); err != nil {
		log.Error().Err(err).Msg("Failed to save preferences")
		return
	}
	a.saved = p
	log.Debug().Float64("volume", p.Volume).Str("mode", p.PlayMode.String()).Msg("Preferences saved")
}

// Close 释放所有资源，可以重复调用
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.ipcServer.Close()
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.bar.Stop()
		a.engine.Close()
		if err := a.transport.Destroy(); err != nil {
			log.Warn().Err(err).Msg("Failed to close audio backend")
		}
		for _, c := range a.closers {
			c.Close()
		}
		if a.redis != nil {
			a.redis.Close()
		}
	})
}
