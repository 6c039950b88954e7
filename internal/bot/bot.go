package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/driver"
	"github.com/wdvxdr1123/ZeroBot/message"

	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/config"
	"github.com/liao/chat-analyst/internal/parser"
	"github.com/liao/chat-analyst/internal/query"
)

const (
	replyReset = "Chat cleared. Paste a new WhatsApp export to start again."
	replyBusy  = "Still working on your previous question, please wait."

	// QQ 单条消息太长会被截断，按行拆成多条
	maxReplyRunes = 3000
)

type Bot struct {
	cfg      *config.Config
	sessions *chat.Manager
	router   *query.Router
	forget   func(sessionID string)
	cancel   context.CancelFunc
}

// New forget 可为空（未开启检索时）
func New(cfg *config.Config, sessions *chat.Manager, router *query.Router, forget func(string)) *Bot {
	return &Bot{
		cfg:      cfg,
		sessions: sessions,
		router:   router,
		forget:   forget,
	}
}

func (b *Bot) Run(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	ws := driver.NewWebSocketClient(
		b.cfg.NapCat.WSURL,
		b.cfg.NapCat.AccessToken,
	)

	// 管理命令：owner 发 /status 查看状态
	zero.OnCommand("status", zero.OnlyPrivate, b.ownerFilter()).SetBlock(true).Handle(func(zctx *zero.Ctx) {
		zctx.Send(message.Text(fmt.Sprintf("chat-analyst running, %d sessions", b.sessions.Len())))
	})

	// 注册私聊消息处理
	zero.OnMessage(zero.OnlyPrivate, b.allowFilter()).Handle(func(zctx *zero.Ctx) {
		b.handleMessage(ctx, zctx)
	})

	slog.Info("bot starting",
		"allowed_qq", b.cfg.Bot.AllowedQQ,
		"ws_url", b.cfg.NapCat.WSURL,
	)

	zero.RunAndBlock(&zero.Config{
		NickName:   []string{"chat-analyst"},
		SuperUsers: []int64{b.cfg.Bot.OwnerQQ},
		Driver:     []zero.Driver{ws},
	}, nil)
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bot) handleMessage(ctx context.Context, zctx *zero.Ctx) {
	text := zctx.ExtractPlainText()
	reply := b.Reply(ctx, zctx.Event.UserID, text)
	if reply == "" {
		return // 跳过纯表情/图片等非文本消息
	}
	for _, part := range splitReply(reply, maxReplyRunes) {
		zctx.Send(message.Text(part))
	}
}

// Reply 处理一条私聊文本，返回要发回的内容，空串表示不回复
// 粘贴的聊天记录视为上传；/reset 清空；/words 统计高频词；其余当作问题
func (b *Bot) Reply(ctx context.Context, userID int64, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	sess := b.sessions.GetOrCreate(SessionID(userID))
	slog.Info("received message", "from", userID, "chars", len(text))

	switch {
	case text == "/reset":
		sess.Reset()
		b.forgetSession(sess.ID)
		return replyReset

	case text == "/words":
		text = "top words"

	case parser.Detect(text):
		res := sess.Upload(text)
		b.forgetSession(sess.ID)
		slog.Info("transcript pasted", "from", userID, "records", res.Records)
		return fmt.Sprintf("%s (%d messages)", res.Notice, res.Records)
	}

	ans, err := b.router.Answer(ctx, sess, text)
	if errors.Is(err, chat.ErrAnswerPending) {
		return replyBusy
	}
	if err != nil {
		slog.Error("answer failed", "from", userID, "error", err)
		return query.ErrorPrefix + err.Error()
	}
	return ans.Text
}

// SessionID QQ 用户对应的会话 ID
func SessionID(userID int64) string {
	return "qq:" + strconv.FormatInt(userID, 10)
}

func (b *Bot) forgetSession(id string) {
	if b.forget != nil {
		b.forget(id)
	}
}

func (b *Bot) allowFilter() zero.Rule {
	return func(ctx *zero.Ctx) bool {
		return b.allowed(ctx.Event.UserID)
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.Bot.AllowedQQ) == 0 {
		return true // 不限制，回复所有人
	}
	return userID == b.cfg.Bot.OwnerQQ || slices.Contains(b.cfg.Bot.AllowedQQ, userID)
}

func (b *Bot) ownerFilter() zero.Rule {
	return func(ctx *zero.Ctx) bool {
		return ctx.Event.UserID == b.cfg.Bot.OwnerQQ
	}
}

// splitReply 按行把长回复拆成不超过 limit 个字符的几段，单行超长时硬切
func splitReply(reply string, limit int) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			parts = append(parts, s)
		}
		cur = cur[:0]
	}

	for line := range strings.Lines(reply) {
		r := []rune(line)
		if len(cur)+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			parts = append(parts, string(r[:limit]))
			r = r[limit:]
		}
		cur = append(cur, r...)
	}
	flush()
	return parts
}
