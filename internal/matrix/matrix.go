// Package matrix connects the bot to a Matrix homeserver through the
// client-server sync API.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/hession/campusbot/internal/bot"
	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/format"
	"github.com/hession/campusbot/internal/logger"
)

// Platform label used in logs, metrics and the journal
const Platform = "matrix"

const (
	backoffMin     = 2 * time.Second
	backoffMax     = 5 * time.Minute
	typingTimeout  = 5 * time.Second
	sentCacheSize  = 1024
	roomCacheSize  = 256
	roomCacheTTL   = 10 * time.Minute
	directRoomSize = 2
)

// Handler processes one inbound message
type Handler interface {
	Handle(ctx context.Context, s bot.Sender, msg bot.Message) error
}

// Transport Matrix sync transport. It implements bot.Sender.
type Transport struct {
	client  *mautrix.Client
	cfg     config.MatrixConfig
	handler Handler
	userID  id.UserID
	rooms   map[id.RoomID]bool
	sent    *lru.Cache[id.EventID, struct{}]
	direct  *expirable.LRU[id.RoomID, bool]
	started time.Time
	wg      sync.WaitGroup
}

// New creates the client. When db is not nil the sync position is kept in
// it across restarts.
func New(cfg config.MatrixConfig, handler Handler, db *sql.DB) (*Transport, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("matrix homeserver, user_id and access_token are required")
	}

	userID := id.UserID(cfg.UserID)
	client, err := mautrix.NewClient(cfg.Homeserver, userID, cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	if l := logger.GetDefault(); l != nil {
		client.Log = l.Zerolog()
	}

	if db != nil {
		store, err := newDBSyncStore(db)
		if err != nil {
			return nil, err
		}
		client.Store = store
	} else {
		logger.Warn("Matrix: no database configured, room history will replay on restart")
	}

	// lru.New only fails for a non-positive size
	sent, _ := lru.New[id.EventID, struct{}](sentCacheSize)

	t := &Transport{
		client:  client,
		cfg:     cfg,
		handler: handler,
		userID:  userID,
		rooms:   make(map[id.RoomID]bool, len(cfg.Rooms)),
		sent:    sent,
		direct:  expirable.NewLRU[id.RoomID, bool](roomCacheSize, nil, roomCacheTTL),
	}
	for _, r := range cfg.Rooms {
		t.rooms[id.RoomID(r)] = true
	}
	return t, nil
}

// Run syncs until ctx is cancelled, reconnecting with exponential backoff
// after errors. It returns after in-flight handlers have finished.
func (t *Transport) Run(ctx context.Context) error {
	syncer, ok := t.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected Matrix syncer %T", t.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, t.onMessage)
	if t.cfg.AutoJoin {
		syncer.OnEventType(event.StateMember, t.onMember)
	}

	for roomID := range t.rooms {
		if err := t.join(ctx, roomID); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	t.started = time.Now()
	logger.Info("Matrix: syncing as %s", t.userID)

	defer t.wg.Wait()
	backoff := backoffMin
	for {
		err := t.client.SyncWithContext(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		logger.Error("Matrix sync stopped, reconnecting in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

func (t *Transport) onMessage(ctx context.Context, evt *event.Event) {
	// Events from before startup arrive on the first sync without a stored token
	if evt.Timestamp < t.started.UnixMilli() {
		return
	}
	if len(t.rooms) > 0 && !t.rooms[evt.RoomID] {
		return
	}
	msg, ok := toMessage(evt, t.userID)
	if !ok {
		return
	}
	if content := evt.Content.AsMessage(); content.RelatesTo != nil {
		msg.ReplyToBot = t.sent.Contains(content.RelatesTo.GetReplyTo())
	}
	msg.Private = t.isDirect(ctx, evt.RoomID)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Matrix handler panic in room %s: %v", msg.ChatID, r)
			}
		}()
		if err := t.handler.Handle(ctx, t, msg); err != nil {
			logger.Error("Matrix: failed to answer room %s: %v", msg.ChatID, err)
		}
	}()
}

func (t *Transport) onMember(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite || evt.GetStateKey() != t.userID.String() {
		return
	}
	if err := t.join(ctx, evt.RoomID); err != nil {
		logger.Warn("Matrix: failed to accept invite to %s: %v", evt.RoomID, err)
		return
	}
	logger.Info("Matrix: joined %s on invite from %s", evt.RoomID, evt.Sender)
}

func (t *Transport) join(ctx context.Context, roomID id.RoomID) error {
	if _, err := t.client.JoinRoomByID(ctx, roomID); err != nil {
		// Returned when the bot is already a member
		if errors.Is(err, mautrix.MForbidden) {
			logger.Warn("Matrix: join %s forbidden, continuing", roomID)
			return nil
		}
		return err
	}
	return nil
}

// isDirect reports whether the room has only the bot and one other member
func (t *Transport) isDirect(ctx context.Context, roomID id.RoomID) bool {
	if direct, ok := t.direct.Get(roomID); ok {
		return direct
	}
	resp, err := t.client.JoinedMembers(ctx, roomID)
	if err != nil {
		logger.Debug("Matrix: member lookup for %s failed: %v", roomID, err)
		return false
	}
	direct := len(resp.Joined) == directRoomSize
	t.direct.Add(roomID, direct)
	return direct
}

// Send implements bot.Sender. Markup mode sends HTML rendered from the chat
// markup with a plain-text body.
func (t *Transport) Send(ctx context.Context, chatID, text, replyTo string, markup bool) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if markup {
		rendered, err := renderHTML(text)
		if err != nil {
			return fmt.Errorf("%w: %v", bot.ErrMarkupRejected, err)
		}
		content.Body = format.PlainText(text)
		content.Format = event.FormatHTML
		content.FormattedBody = rendered
	}
	if replyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(replyTo)},
		}
	}

	resp, err := t.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, &content)
	if err != nil {
		return classifyError(err)
	}
	t.sent.Add(resp.EventID, struct{}{})
	return nil
}

// Typing implements bot.Sender
func (t *Transport) Typing(ctx context.Context, chatID string) error {
	_, err := t.client.UserTyping(ctx, id.RoomID(chatID), true, typingTimeout)
	return err
}

func classifyError(err error) error {
	if errors.Is(err, mautrix.MBadJSON) || errors.Is(err, mautrix.MNotJSON) {
		return fmt.Errorf("%w: %v", bot.ErrMarkupRejected, err)
	}
	return fmt.Errorf("matrix send failed: %w", err)
}

// toMessage converts a room message into a bot message. The bot's own
// messages and non-text messages are skipped; a mention of the bot's user
// ID is removed from the text.
func toMessage(evt *event.Event, self id.UserID) (bot.Message, bool) {
	if evt.Sender == self {
		return bot.Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return bot.Message{}, false
	}

	text := stripReplyFallback(content.Body)
	mentioned := content.Mentions != nil && slices.Contains(content.Mentions.UserIDs, self)
	if strings.Contains(text, self.String()) {
		mentioned = true
		text = strings.TrimLeft(strings.TrimSpace(strings.ReplaceAll(text, self.String(), "")), ",: ")
	}
	if strings.TrimSpace(text) == "" {
		return bot.Message{}, false
	}

	return bot.Message{
		Platform:  Platform,
		ChatID:    evt.RoomID.String(),
		UserID:    evt.Sender.String(),
		MessageID: evt.ID.String(),
		Author:    displayName(evt.Sender),
		Text:      text,
		Mentioned: mentioned,
	}, true
}

// stripReplyFallback drops the quoted "> <@user> ..." lines clients prepend
// to replies
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

func displayName(userID id.UserID) string {
	localpart, _, err := userID.Parse()
	if err != nil || localpart == "" {
		return userID.String()
	}
	return localpart
}
