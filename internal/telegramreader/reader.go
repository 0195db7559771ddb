// Package telegramreader polls monitored channels over MTProto and
// feeds parsed share messages into storage.
package telegramreader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/parse"
	"github.com/panwatch/panwatch/internal/platform/config"
	"github.com/panwatch/panwatch/internal/platform/observability"
	db "github.com/panwatch/panwatch/internal/storage"
)

// ErrNoCredentials indicates neither the database nor the environment
// holds a Telegram API credential pair.
var ErrNoCredentials = errors.New("no telegram api credentials configured")

// ErrChannelNotFound indicates the username resolved to nothing.
var ErrChannelNotFound = errors.New("channel not found")

// ErrNotAChannel indicates the peer is not a channel.
var ErrNotAChannel = errors.New("peer is not a channel")

// ErrUnexpectedInviteType indicates an unexpected invite type was returned.
var ErrUnexpectedInviteType = errors.New("chat invite returned unexpected type")

const (
	saveAttempts  = 3
	fetchSpacing  = time.Second
	failedLogName = "failed_messages.log"
)

// Messages come from channels timestamped in UTC and are stored as
// naive Beijing time, matching historical rows.
var beijingOffset = 8 * time.Hour

type Reader struct {
	cfg      *config.Config
	database *db.DB
	client   *telegram.Client
	logger   zerolog.Logger

	savePause time.Duration
	failedLog string
}

func New(cfg *config.Config, database *db.DB, logger zerolog.Logger) *Reader {
	return &Reader{
		cfg:       cfg,
		database:  database,
		logger:    logger.With().Str("component", "reader").Logger(),
		savePause: time.Second,
		failedLog: failedLogName,
	}
}

// Run connects, authenticates and polls until the context is canceled.
func (r *Reader) Run(ctx context.Context) error {
	apiID, apiHash, err := r.credentials(ctx)
	if err != nil {
		return err
	}

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: r.cfg.Telegram.SessionPath,
		},
	})

	r.client = client

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, r.authFlow()); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}

		r.logger.Info().Msg("authenticated with Telegram")

		return r.poll(ctx)
	})
}

// credentials prefers a pair stored in the database over the
// environment fallback.
func (r *Reader) credentials(ctx context.Context) (int, string, error) {
	cred, err := r.database.FirstCredential(ctx)

	switch {
	case err == nil:
		apiID, convErr := strconv.Atoi(cred.APIID)
		if convErr != nil {
			return 0, "", fmt.Errorf("stored api_id %q is not numeric: %w", cred.APIID, convErr)
		}

		return apiID, cred.APIHash, nil
	case errors.Is(err, db.ErrNotFound):
	default:
		return 0, "", fmt.Errorf("load credentials: %w", err)
	}

	if r.cfg.Telegram.APIID == 0 || r.cfg.Telegram.APIHash == "" {
		return 0, "", ErrNoCredentials
	}

	return r.cfg.Telegram.APIID, r.cfg.Telegram.APIHash, nil
}

func (r *Reader) poll(ctx context.Context) error {
	api := tg.NewClient(r.client)

	r.seedDefaultChannels(ctx)

	for {
		r.cycle(ctx, api)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.Telegram.PollInterval):
		}
	}
}

// seedDefaultChannels registers DEFAULT_CHANNELS in the database so
// the admin plane sees them alongside manually added ones.
func (r *Reader) seedDefaultChannels(ctx context.Context) {
	for _, username := range r.cfg.Telegram.DefaultChannels {
		username = strings.TrimSpace(username)
		if username == "" {
			continue
		}

		if err := r.database.EnsureChannel(ctx, username); err != nil {
			r.logger.Warn().Err(err).Str("channel", username).Msg("failed to seed default channel")
		}
	}
}

func (r *Reader) cycle(ctx context.Context, api *tg.Client) {
	channels, err := r.database.ListChannels(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list channels")
		return
	}

	if len(channels) == 0 {
		r.logger.Info().Msg("no channels to monitor, waiting")
		return
	}

	start := time.Now()
	saved := 0

	for _, ch := range channels {
		count, err := r.fetchChannel(ctx, api, ch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			r.logger.Error().Err(err).Str("channel", ch.Username).Msg("failed to fetch channel")
		}

		saved += count

		select {
		case <-ctx.Done():
			return
		case <-time.After(fetchSpacing):
		}
	}

	r.logger.Info().
		Int("channels", len(channels)).
		Int("saved", saved).
		Dur("duration", time.Since(start)).
		Msg("finished poll cycle")
}

// fetchChannel pulls history newer than the stored offset and persists
// every message carrying netdisk share links.
func (r *Reader) fetchChannel(ctx context.Context, api *tg.Client, ch domain.Channel) (int, error) {
	channel, err := r.resolveChannel(ctx, api, ch.Username)
	if err != nil {
		observability.IngestErrors.WithLabelValues("resolve").Inc()
		return 0, err
	}

	req := &tg.MessagesGetHistoryRequest{
		Peer: &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		Limit: r.cfg.Telegram.FetchLimit,
	}

	if ch.LastMessageID > 0 {
		// Fetch messages newer than the last seen one.
		req.OffsetID = int(ch.LastMessageID)
		req.AddOffset = -r.cfg.Telegram.FetchLimit
	}

	history, err := api.MessagesGetHistory(ctx, req)
	if err != nil {
		floodErr, ok := tgerr.As(err)
		if ok && floodErr.Type == "FLOOD_WAIT" {
			r.logger.Warn().Int("seconds", floodErr.Argument).Str("channel", ch.Username).Msg("flood wait")
			observability.ReaderFloodWaitSecondsTotal.WithLabelValues(ch.Username).Add(float64(floodErr.Argument))

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(floodErr.Argument) * time.Second):
			}

			return 0, nil
		}

		observability.ReaderFetchRequestsTotal.WithLabelValues(ch.Username, "error").Inc()

		return 0, fmt.Errorf("get history: %w", err)
	}

	observability.ReaderFetchRequestsTotal.WithLabelValues(ch.Username, "ok").Inc()

	var messages []tg.MessageClass

	switch h := history.(type) {
	case *tg.MessagesMessages:
		messages = h.Messages
	case *tg.MessagesMessagesSlice:
		messages = h.Messages
	case *tg.MessagesChannelMessages:
		messages = h.Messages
	case *tg.MessagesMessagesNotModified:
		return 0, nil
	}

	saved := 0
	maxID := ch.LastMessageID

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}

		if int64(msg.ID) > maxID {
			maxID = int64(msg.ID)
		}

		if msg.Message == "" {
			observability.MessagesSkipped.WithLabelValues("empty").Inc()
			continue
		}

		parsed, ok := r.parseMessage(msg)
		if !ok {
			continue
		}

		if len(parsed.Links) == 0 {
			observability.MessagesSkipped.WithLabelValues("no_share_links").Inc()
			continue
		}

		stored := &domain.Message{
			Timestamp:   messageTime(msg.Date),
			Title:       parsed.Title,
			Description: parsed.Description,
			Links:       parsed.Links,
			Tags:        parsed.Tags,
			Source:      parsed.Source,
			Channel:     parsed.Channel,
			GroupName:   parsed.GroupName,
			Bot:         parsed.Bot,
		}

		if err := r.storeMessage(ctx, stored, msg.Message); err != nil {
			r.logger.Error().Err(err).Str("channel", ch.Username).Int("msg_id", msg.ID).Msg("failed to store message")
			continue
		}

		saved++

		observability.MessagesIngested.WithLabelValues(ch.Username).Inc()
	}

	if maxID > ch.LastMessageID {
		if err := r.database.SetChannelOffset(ctx, ch.Username, maxID); err != nil {
			r.logger.Error().Err(err).Str("channel", ch.Username).Msg("failed to update channel offset")
		}
	}

	return saved, nil
}

// resolveChannel maps a username, either a public handle or an
// invite-hash string of the form +xxxxxxxxxx, to its channel.
func (r *Reader) resolveChannel(ctx context.Context, api *tg.Client, username string) (*tg.Channel, error) {
	if isInviteHash(username) {
		return r.joinByInvite(ctx, api, strings.TrimPrefix(username, "+"))
	}

	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, fmt.Errorf("resolve username: %w", err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
	}

	channel, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, username)
	}

	return channel, nil
}

// joinByInvite joins a private channel by its invite hash, tolerating
// a prior membership.
func (r *Reader) joinByInvite(ctx context.Context, api *tg.Client, hash string) (*tg.Channel, error) {
	updates, err := api.MessagesImportChatInvite(ctx, hash)
	if err != nil {
		if !tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
			return nil, fmt.Errorf("join by invite: %w", err)
		}

		invite, err := api.MessagesCheckChatInvite(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check chat invite: %w", err)
		}

		switch i := invite.(type) {
		case *tg.ChatInviteAlready:
			if channel, ok := i.Chat.(*tg.Channel); ok {
				return channel, nil
			}
		case *tg.ChatInvitePeek:
			if channel, ok := i.Chat.(*tg.Channel); ok {
				return channel, nil
			}
		}

		return nil, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, invite)
	}

	if u, ok := updates.(*tg.Updates); ok {
		for _, chat := range u.Chats {
			if channel, ok := chat.(*tg.Channel); ok {
				return channel, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, updates)
}

// parseMessage shields the poll loop from parser panics on malformed
// posts, logging a text prefix for later inspection.
func (r *Reader) parseMessage(msg *tg.Message) (res parse.Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Str("text", textPrefix(msg.Message, 200)).
				Msg("message parse failed")
			observability.IngestErrors.WithLabelValues("parse").Inc()

			ok = false
		}
	}()

	return parse.Message(msg), true
}

func textPrefix(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}

// storeMessage retries transient database failures before spilling the
// raw text to a local log so nothing is silently lost.
func (r *Reader) storeMessage(ctx context.Context, m *domain.Message, raw string) error {
	var err error

	for attempt := 1; attempt <= saveAttempts; attempt++ {
		if err = r.database.SaveMessage(ctx, m); err == nil {
			return nil
		}

		r.logger.Warn().Err(err).Int("attempt", attempt).Msg("database write failed")

		if attempt < saveAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.savePause):
			}
		}
	}

	observability.IngestErrors.WithLabelValues("store").Inc()
	r.spillFailedMessage(raw)

	return fmt.Errorf("store message after %d attempts: %w", saveAttempts, err)
}

func (r *Reader) spillFailedMessage(raw string) {
	f, err := os.OpenFile(r.failedLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to open spill log")
		return
	}

	defer f.Close() //nolint:errcheck // best-effort spill log

	if _, err := fmt.Fprintf(f, "[%s] %s\n", time.Now().Format(time.RFC3339), raw); err != nil {
		r.logger.Error().Err(err).Msg("failed to write spill log")
	}
}

// mergeChannels merges database channels with the configured defaults.
func mergeChannels(stored []domain.Channel, defaults []string) []string {
	seen := make(map[string]struct{}, len(stored)+len(defaults))

	for _, ch := range stored {
		seen[ch.Username] = struct{}{}
	}

	for _, username := range defaults {
		username = strings.TrimSpace(username)
		if username != "" {
			seen[username] = struct{}{}
		}
	}

	merged := make([]string, 0, len(seen))
	for username := range seen {
		merged = append(merged, username)
	}

	sort.Strings(merged)

	return merged
}

func isInviteHash(username string) bool {
	if !strings.HasPrefix(username, "+") {
		return false
	}

	hash := username[1:]
	if len(hash) < 10 {
		return false
	}

	for _, c := range hash {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}

	return true
}

func messageTime(date int) time.Time {
	return time.Unix(int64(date), 0).UTC().Add(beijingOffset)
}
