package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"

	kit "chainjobs/internal/transport"
)

const (
	chatMaxLen  = 3500
	chatMaxAttr = 600
)

// deliver sends queued chat messages until ctx ends. Send errors are
// dropped; logging them would loop back into the sink.
func (s *Service) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.outbox:
			if s.sender != nil {
				_ = s.sender.SendText(ctx, m.to, m.text, &kit.SendOptions{DisablePreview: true})
			}
		}
	}
}

// chatSink forwards qualifying lines to the outbox. It never blocks: lines
// over the rate limit or beyond a full outbox are dropped.
type chatSink struct{ svc *Service }

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := c.svc
	if s == nil || s.sender == nil {
		return len(p), nil
	}
	s.mu.Lock()
	st := s.chat
	s.mu.Unlock()

	if st.target.ChatID == 0 || st.limiter == nil || level < st.minLevel || !st.limiter.Allow() {
		return len(p), nil
	}
	text := chatText(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case s.outbox <- chatMessage{to: st.target, text: text}:
	default:
	}
	return len(p), nil
}

// chatText renders one JSON log line for a chat:
//
//	[ERROR] function call failed
//	- function=closeDeposit
func chatText(p []byte) string {
	line := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return clip(line, chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec["message"].(string)
	b.WriteString(msg)

	delete(rec, "level")
	delete(rec, "message")
	delete(rec, "time")
	keys := maps.Keys(rec)
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), chatMaxAttr))
	}
	return clip(b.String(), chatMaxLen)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
