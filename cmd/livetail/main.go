// livetail follows the channels of one room and posts every stdin line to
// the room's chat.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/session"
	"go.uber.org/zap"
)

func follow(ctx context.Context, logger *zap.Logger, manager *session.Manager, kind channel.Kind, roomId string) error {
	switch kind {
	case channel.KindChat:
		return session.Subscribe(ctx, manager, kind, roomId, func(message channel.ChatMessage) {
			logger.Info("chat", zap.String("sender", message.Sender), zap.String("text", message.Text))
		})
	case channel.KindEmoji:
		return session.Subscribe(ctx, manager, kind, roomId, func(emoji channel.Emoji) {
			logger.Info("emoji", zap.String("sender", emoji.Sender), zap.String("emoji", emoji.Emoji))
		})
	case channel.KindModuleAction:
		return session.Subscribe(ctx, manager, kind, roomId, func(action channel.ModuleAction) {
			logger.Info("module action",
				zap.String("module", action.Module),
				zap.String("action", action.Action),
				zap.ByteString("data", action.Data))
		})
	case channel.KindStreamStatus:
		return session.Subscribe(ctx, manager, kind, roomId, func(status channel.StatusMessage) {
			logger.Info("stream status", zap.String("status", status.Status), zap.String("message", status.Message))
		})
	default:
		return fmt.Errorf("unknown channel kind: %s", kind)
	}
}

func main() {
	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Errorf("failed to parse settings from environment: %w", err))
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	dialer := session.NewTransportDialer(logger, settings.LiveURL, nil)
	manager := session.NewManager(logger, dialer, session.Options{
		Token:      settings.Token,
		RetryDelay: settings.RetryDelay,
	})
	defer manager.Close()

	for _, name := range settings.Channels {
		kind := channel.Kind(name)

		// a failed first connect keeps retrying in the background
		err := follow(ctx, logger, manager, kind, settings.RoomId)
		if err != nil {
			logger.Warn("failed to follow channel", zap.String("kind", name), zap.Error(err))
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping")
			return
		case line := <-lines:
			err := manager.Send(ctx, channel.KindChat, channel.ChatMessage{
				Sender:   settings.Sender,
				Text:     line,
				SentTime: time.Now(),
			})
			if err != nil {
				logger.Warn("failed to send chat message", zap.Error(err))
			}
		}
	}
}
