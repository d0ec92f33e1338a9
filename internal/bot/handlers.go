package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/auth"
	"digest_bot/internal/model"
	"digest_bot/internal/storage"
)

func (b *Bot) resolveUser(ctx context.Context, msg *tgbotapi.Message) (*model.User, error) {
	u := model.User{
		TelegramID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
	}
	if err := b.store.GetOrCreateUser(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Channel Digest Bot!

Subscribe to Telegram channels and get AI summaries of new posts.

Quick start:
1. /add <channel> — subscribe to a channel
2. /interests <topics> — highlight posts that match your interests
3. /auth <phone> — optional: log in a userbot to cover voice and video posts

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscriptions:
/add <channel> — subscribe to a channel (@name or t.me link)
/list — show your channels
/remove <channel> — unsubscribe

Personalization:
/interests <topics> — set your interest profile
/interests clear — remove it
/provider <name> — switch the AI provider

Userbot login (unlocks voice/video/album posts):
/auth <phone> — start login
/code <code> — submit the confirmation code
/password <pw> — submit the two-factor password
/logout — drop the userbot session

/status — show login state, provider and subscriptions`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, user *model.User, args string) {
	name, err := ParseChannelArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /add <channel>\n%v", err))
		return
	}

	ch, err := b.store.GetChannelByUsername(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		info, probeErr := b.prober.ChannelInfo(ctx, name)
		if probeErr != nil {
			b.reply(chatID, fmt.Sprintf("Could not find channel @%s. Is it public?", name))
			return
		}
		// Start the watermark at the newest current post so the first poll
		// does not backfill the channel's history.
		ch = &model.Channel{Username: name, Title: info.Title, LastPostID: info.NewestPostID, IsActive: true}
		if err := b.store.CreateChannel(ctx, ch); err != nil {
			b.reply(chatID, fmt.Sprintf("Failed to save channel: %v", err))
			return
		}
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	added, err := b.store.Subscribe(ctx, user.ID, ch.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !added {
		b.reply(chatID, fmt.Sprintf("You are already subscribed to @%s.", name))
		return
	}
	b.reply(chatID, fmt.Sprintf("Subscribed to @%s — %s.\nNew posts will arrive as summaries.", ch.Username, ch.Title))
}

func (b *Bot) handleList(ctx context.Context, chatID int64, user *model.User) {
	channels, err := b.store.ListUserChannels(ctx, user.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatChannelList(channels))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, user *model.User, args string) {
	name, err := ParseChannelArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <channel>")
		return
	}

	ch, err := b.store.GetChannelByUsername(ctx, name)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Channel @%s not found.", name))
		return
	}

	removed, err := b.store.Unsubscribe(ctx, user.ID, ch.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("You are not subscribed to @%s.", name))
		return
	}
	b.reply(chatID, fmt.Sprintf("Unsubscribed from @%s.", name))
}

func (b *Bot) handleInterests(ctx context.Context, chatID int64, user *model.User, args string) {
	switch args {
	case "":
		if user.Interests == "" {
			b.reply(chatID, "No interests set. Use /interests <topics> to highlight matching posts, e.g. /interests AI, space, databases")
			return
		}
		b.reply(chatID, fmt.Sprintf("Your interests: %s\nUse /interests clear to remove them.", user.Interests))
	case "clear":
		if err := b.store.SetUserInterests(ctx, user.ID, ""); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, "Interests cleared.")
	default:
		if err := b.store.SetUserInterests(ctx, user.ID, args); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, fmt.Sprintf("Interests saved: %s\nMatching summaries will be marked with %s.", args, "⭐"))
	}
}

func (b *Bot) handleProvider(ctx context.Context, chatID int64, args string) {
	if args == "" {
		opts := b.settings.Options()
		b.reply(chatID, fmt.Sprintf("Current provider: %s\nUse /provider <name> to switch.", opts.Provider))
		return
	}
	if err := b.settings.SetProvider(ctx, args); err != nil {
		b.reply(chatID, fmt.Sprintf("Cannot switch provider: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("AI provider switched to %s.", args))
}

func (b *Bot) handleAuth(ctx context.Context, chatID int64, args string) {
	phone, err := ParsePhoneArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /auth <phone>\n%v", err))
		return
	}
	if err := b.auth.StartAuth(ctx, phone); err != nil {
		b.reply(chatID, fmt.Sprintf("Login failed: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Confirmation code sent to %s. Reply with /code <code>.", phone))
}

func (b *Bot) handleCode(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /code <code>")
		return
	}

	state, err := b.auth.ConfirmCode(ctx, args)
	switch {
	case errors.Is(err, auth.ErrCodeInvalid):
		b.reply(chatID, "That code is not valid, try again with /code <code>.")
	case errors.Is(err, auth.ErrCodeExpired):
		b.reply(chatID, "The code expired. Restart the login with /auth <phone>.")
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Login failed: %v", err))
	case state == auth.WaitingPassword:
		b.reply(chatID, "Two-factor password required. Reply with /password <password>.")
	case state == auth.Authorized:
		b.reply(chatID, "Userbot authorized. Voice, video and album posts are now covered.")
	default:
		b.reply(chatID, fmt.Sprintf("Login state: %s.", state))
	}
}

func (b *Bot) handlePassword(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /password <password>")
		return
	}

	state, err := b.auth.ConfirmPassword(ctx, args)
	switch {
	case errors.Is(err, auth.ErrPasswordInvalid):
		b.reply(chatID, "Wrong password, try again with /password <password>.")
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Login failed: %v", err))
	case state == auth.Authorized:
		b.reply(chatID, "Userbot authorized. Voice, video and album posts are now covered.")
	default:
		b.reply(chatID, fmt.Sprintf("Login state: %s.", state))
	}
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	if err := b.auth.Logout(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("Logout failed: %v", err))
		return
	}
	b.reply(chatID, "Userbot session dropped. The public preview source stays active.")
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, user *model.User) {
	channels, err := b.store.ListUserChannels(ctx, user.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStatus(b.auth.State(), b.auth.Phone(), b.settings.Options(), user.Interests, len(channels)))
}
