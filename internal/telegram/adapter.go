package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

const (
	maxTelegramMessage = 4096
	maxHistory         = 20
)

var employeeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Exchanges runs chat exchanges; *gateway.Gateway implements it.
type Exchanges interface {
	Handle(ctx context.Context, req runtime.Request, sink runtime.Sink) (types.ExchangeID, error)
}

// sender is the part of the bot API the adapter uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// chatState is what the adapter remembers about one chat. It lives in
// memory only.
type chatState struct {
	employeeID string
	history    []llm.Message
}

// Adapter bridges Telegram to the gateway. Each text message is one
// exchange; the reply is the collected assistant text.
type Adapter struct {
	bot       *tgbotapi.BotAPI
	sender    sender
	exchanges Exchanges

	mu    sync.Mutex
	chats map[int64]*chatState
}

// New creates a Telegram adapter.
func New(token string, exchanges Exchanges) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, exchanges)
	a.bot = bot
	return a, nil
}

func newAdapter(s sender, exchanges Exchanges) *Adapter {
	return &Adapter{
		sender:    s,
		exchanges: exchanges,
		chats:     make(map[int64]*chatState),
	}
}

// Start begins long-polling for Telegram updates. It returns when ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	employeeID, history := a.snapshot(chatID)

	reply := &collector{}
	_, err := a.exchanges.Handle(ctx, runtime.Request{
		Message:    msg.Text,
		EmployeeID: employeeID,
		History:    history,
	}, reply)
	if err != nil {
		slog.Warn("telegram exchange failed", "chat_id", chatID, "error", err)
	}

	text := reply.String()
	if text == "" {
		text = "抱歉，处理您的消息时出现问题，请稍后再试。"
	}
	if err == nil && reply.failed == "" {
		a.remember(chatID, msg.Text, reply.content.String())
	}
	a.sendResponse(chatID, text)
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "您好！我是AI请假助手，可以帮您查询假期余额和提交请假申请。\n使用 /id EMP001 设置您的员工编号。")

	case "id":
		id := strings.TrimSpace(msg.CommandArguments())
		if id == "" {
			current, _ := a.snapshot(chatID)
			if current == "" {
				a.sendResponse(chatID, "尚未设置员工编号。用法：/id EMP001")
			} else {
				a.sendResponse(chatID, "当前员工编号: "+current)
			}
			return
		}
		if !employeeIDPattern.MatchString(id) {
			a.sendResponse(chatID, "员工编号格式不正确。")
			return
		}
		a.setEmployee(chatID, id)
		a.sendResponse(chatID, "已设置员工编号: "+id)

	case "new":
		a.reset(chatID)
		a.sendResponse(chatID, "已开始新的对话。")

	default:
		a.sendResponse(chatID, "未知命令。可用命令：/start, /id, /new")
	}
}

func (a *Adapter) state(chatID int64) *chatState {
	st, ok := a.chats[chatID]
	if !ok {
		st = &chatState{}
		a.chats[chatID] = st
	}
	return st
}

// snapshot returns the chat's employee id and a copy of its history.
func (a *Adapter) snapshot(chatID int64) (string, []llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(chatID)
	return st.employeeID, append([]llm.Message(nil), st.history...)
}

func (a *Adapter) setEmployee(chatID int64, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state(chatID).employeeID = id
}

func (a *Adapter) reset(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state(chatID).history = nil
}

func (a *Adapter) remember(chatID int64, user, assistant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(chatID)
	st.history = append(st.history,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if len(st.history) > maxHistory {
		st.history = st.history[len(st.history)-maxHistory:]
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.sender.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.sender.Send(msg); err != nil {
				slog.Error("telegram send failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// collector is a sink that gathers the assistant's text for a single reply.
type collector struct {
	content strings.Builder
	failed  string
}

func (c *collector) Send(e runtime.Event) error {
	switch e.Type {
	case runtime.EventContent:
		c.content.WriteString(e.Content)
	case runtime.EventError:
		c.failed = e.Message
	}
	return nil
}

func (c *collector) String() string {
	text := c.content.String()
	if c.failed == "" {
		return text
	}
	if text == "" {
		return c.failed
	}
	return text + "\n\n" + c.failed
}

// splitMessage cuts text into Telegram-sized parts without breaking runes.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		end := min(maxTelegramMessage, len(runes))
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}
