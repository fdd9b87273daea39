package notifier

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandHandler is called when a keeper command is received. A non-empty
// return value is sent back to the chat.
type CommandHandler func(command string) string

type update struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// PollTimeout is the long-poll window passed to getUpdates, in seconds.
const PollTimeout = 30

// StartPolling long-polls for commands and feeds them to handler until ctx
// is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	for {
		var updates []update
		err := t.call(ctx, "getUpdates", map[string]int{"offset": offset, "timeout": PollTimeout}, &updates)
		if ctx.Err() != nil {
			t.Log.Info("telegram polling stopped")
			return
		}
		if err != nil {
			t.Log.Warn("telegram polling failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			t.dispatch(ctx, u, handler)
		}
	}
}

func (t *TelegramNotifier) dispatch(ctx context.Context, u update, handler CommandHandler) {
	if u.Message == nil {
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if strconv.FormatInt(u.Message.Chat.ID, 10) != t.ChatID {
		t.Log.Warn("ignoring command from foreign chat", zap.Int64("chat_id", u.Message.Chat.ID))
		return
	}
	// strip bot mentions such as /status@vault_bot
	command, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	t.Log.Info("received command", zap.String("command", command))
	if reply := handler(command); reply != "" {
		if err := t.Send(ctx, reply); err != nil {
			t.Log.Error("send reply", zap.Error(err))
		}
	}
}
