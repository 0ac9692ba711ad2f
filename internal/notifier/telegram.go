package notifier

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/stats"
)

// TelegramSink delivers notification text to a single operator chat,
// grounded on bot/telegram.go's NotifyError/NotifyTrade message shape.
type TelegramSink struct {
	mu     sync.Mutex
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramSink{api: api, chatID: chatID}, nil
}

func (s *TelegramSink) Deliver(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("failed to deliver telegram notification")
		return err
	}
	return nil
}

// StatsProvider is anything that yields a stats.Snapshot (such as
// *stats.Stats); DailySummary itself takes the Snapshot directly.
type StatsProvider interface {
	Snapshot() stats.Snapshot
}

// DailySummary renders the supervisor's daily report.
func DailySummary(s stats.Snapshot) string {
	var b strings.Builder
	b.WriteString("📊 *Daily Mirror Engine Report*\n\n")
	fmt.Fprintf(&b, "Mirrors placed: %d\n", s.MirrorsPlaced)
	fmt.Fprintf(&b, "Immediate fills: %d\n", s.ImmediateFills)
	fmt.Fprintf(&b, "Cancels synced: %d\n", s.CancelsSynced)
	fmt.Fprintf(&b, "Forced cancel cleanups: %d\n", s.ForcedCancelCleanups)
	fmt.Fprintf(&b, "Failed mirrors: %d\n", s.FailedMirrors)
	fmt.Fprintf(&b, "Cancel failures: %d\n", s.CancelFailures)
	fmt.Fprintf(&b, "Margin-mode failures: %d\n", s.MarginModeFailures)
	fmt.Fprintf(&b, "Immediate-fill failures: %d\n", s.ImmediateFillFailures)
	fmt.Fprintf(&b, "Permissive close mirrors: %d\n", s.PermissiveCloseMirrors)
	fmt.Fprintf(&b, "Current ratio: %s\n", s.CurrentRatio.String())
	fmt.Fprintf(&b, "Mirror enabled: %v\n", s.MirrorEnabled)
	return b.String()
}
