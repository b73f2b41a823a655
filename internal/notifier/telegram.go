package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"speedrss/internal/config"
	"speedrss/internal/logging"
	"speedrss/internal/registry"
)

const (
	privateChatReply = "Add this bot to a group or channel as admin, then send /start there to receive new posts."
	registeredReply  = "This group/channel will receive new posts from the feed. Remove the bot to stop."
	alreadyReply     = "This group/channel is already receiving new posts."
)

type botAPI interface {
	Start(ctx context.Context)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"my_chat_member",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance, keeping the chat registry in sync
// with membership events and subscribe commands received via long polling.
type Client struct {
	bot      botAPI
	registry *registry.Registry
	logger   *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling restricted to
// message and my_chat_member updates.
func NewClient(cfg config.Config, reg *registry.Registry, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if reg == nil {
		return nil, errors.New("chat registry is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		registry: reg,
		logger:   logger,
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.defaultHandler),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	return client, nil
}

// SendMessage delegates to the underlying bot, satisfying the relay's sender
// dependency.
func (c *Client) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	return c.bot.SendMessage(ctx, params)
}

// Start clears any inbound webhook registration so polling has exclusive
// control of the update stream, then receives updates until the context is
// canceled. Polling errors are logged and the loop continues.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		c.logger.WithField("event", "webhook_delete_error").WithError(err).Warn("failed to clear webhook registration")
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) defaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	c.processUpdate(ctx, b, update)
}

// processUpdate classifies one update: membership changes mutate the
// registry, subscribe commands register the chat and get a reply.
func (c *Client) processUpdate(ctx context.Context, sender messageSender, update *models.Update) {
	if update == nil {
		return
	}

	if update.MyChatMember != nil {
		c.handleMembership(update.MyChatMember)
		return
	}

	if update.Message != nil {
		c.handleMessage(ctx, sender, update.Message)
	}
}

func (c *Client) handleMembership(event *models.ChatMemberUpdated) {
	chatID := strconv.FormatInt(event.Chat.ID, 10)
	newType := event.NewChatMember.Type
	oldType := event.OldChatMember.Type

	joined := newType == models.ChatMemberTypeMember || newType == models.ChatMemberTypeAdministrator
	wasOut := oldType == models.ChatMemberTypeLeft || oldType == models.ChatMemberTypeBanned
	left := newType == models.ChatMemberTypeLeft || newType == models.ChatMemberTypeBanned

	switch {
	case joined && wasOut && event.Chat.Type != models.ChatTypePrivate:
		added, err := c.registry.Add(chatID)
		if err != nil {
			c.logger.WithField("event", "registry_add_error").WithError(err).Error("failed to register chat")
			return
		}
		if added {
			c.logger.WithFields(logging.Fields{
				"event":   "chat_registered",
				"chat_id": chatID,
				"title":   event.Chat.Title,
			}).Info("bot added to chat")
		}
	case left:
		if err := c.registry.Remove(chatID); err != nil {
			c.logger.WithField("event", "registry_remove_error").WithError(err).Error("failed to deregister chat")
			return
		}
		c.logger.WithFields(logging.Fields{
			"event":   "chat_removed",
			"chat_id": chatID,
		}).Info("bot removed from chat")
	}
}

func (c *Client) handleMessage(ctx context.Context, sender messageSender, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	c.logger.WithFields(logging.Fields{
		"event":     "telegram_message",
		"chat_id":   chatID,
		"chat_type": msg.Chat.Type,
	}).Debug("message update received")

	if !strings.HasPrefix(lower, "/start") && lower != "/subscribe" {
		return
	}

	if msg.Chat.Type == models.ChatTypePrivate {
		c.reply(ctx, sender, msg.Chat.ID, privateChatReply)
		return
	}

	if msg.Chat.Type != models.ChatTypeGroup && msg.Chat.Type != models.ChatTypeSupergroup && msg.Chat.Type != models.ChatTypeChannel {
		c.logger.WithFields(logging.Fields{
			"event":     "subscribe_ignored",
			"chat_id":   chatID,
			"chat_type": msg.Chat.Type,
		}).Info("subscribe command in unsupported chat type")
		return
	}

	added, err := c.registry.Add(chatID)
	if err != nil {
		c.logger.WithField("event", "registry_add_error").WithError(err).Error("failed to register chat")
		return
	}

	if added {
		c.logger.WithFields(logging.Fields{
			"event":   "chat_registered",
			"chat_id": chatID,
			"title":   msg.Chat.Title,
		}).Info("chat registered via subscribe command")
		c.reply(ctx, sender, msg.Chat.ID, registeredReply)
		return
	}

	c.reply(ctx, sender, msg.Chat.ID, alreadyReply)
}

func (c *Client) reply(ctx context.Context, sender messageSender, chatID int64, text string) {
	if _, err := sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "reply_error",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to send reply")
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
