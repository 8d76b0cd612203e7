// Package telegram adapts the worker pool's primary client into the narrow
// interfaces the ingestion package needs: sending notifications, enumerating
// a channel's message history for the batch seeder, and resolving a file's
// locator/properties for probing. It is the only package that imports
// gotd/td outside of internal/workerpool and internal/streamer.
package telegram

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/gotd/td/tg"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/ingest"
	"github.com/reelnn/streamvault/internal/streamer"
	"github.com/reelnn/streamvault/internal/workerpool"
)

// Client wraps the worker pool's primary slot for notification and
// enumeration purposes. Only the primary client posts; it is the only one
// authorized to write to the media/log/post channels.
type Client struct {
	pool     *workerpool.Pool
	streamer *streamer.Streamer

	logsChatID int64
	postChatID int64
}

// Config supplies the chat ids notifications are sent to.
type Config struct {
	LogsChatID int64
	PostChatID int64
}

// New creates a Client bound to the pool's primary slot.
func New(pool *workerpool.Pool, str *streamer.Streamer, cfg Config) *Client {
	return &Client{pool: pool, streamer: str, logsChatID: cfg.LogsChatID, postChatID: cfg.PostChatID}
}

// NotifyError implements ingest.Notifier: replies in the originating chat
// and mirrors the message to the configured logs chat.
func (c *Client) NotifyError(ctx context.Context, chatID int64, messageID int, reason string) error {
	slot := c.pool.Primary()
	text := fmt.Sprintf("could not process message %d: %s", messageID, reason)

	if _, err := slot.Client.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     &tg.InputPeerChannel{ChannelID: chatID},
		Message:  text,
		RandomID: randomID(),
	}); err != nil {
		return fmt.Errorf("%w: reply to chat: %s", apierr.ErrUpstreamUnavailable, err)
	}

	if c.logsChatID != 0 {
		_, _ = slot.Client.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     &tg.InputPeerChannel{ChannelID: c.logsChatID},
			Message:  text,
			RandomID: randomID(),
		})
	}
	return nil
}

// NotifyPosted sends a formatted poster card to the configured broadcast
// channel.
func (c *Client) NotifyPosted(ctx context.Context, title, quality, mediaType string) error {
	if c.postChatID == 0 {
		return nil
	}
	slot := c.pool.Primary()
	text := fmt.Sprintf("new %s: %s [%s]", mediaType, title, quality)
	_, err := slot.Client.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     &tg.InputPeerChannel{ChannelID: c.postChatID},
		Message:  text,
		RandomID: randomID(),
	})
	if err != nil {
		return fmt.Errorf("%w: post update: %s", apierr.ErrUpstreamUnavailable, err)
	}
	return nil
}

// EnumerateMessages implements ingest.MessageEnumerator, listing channel
// history between fromID and toID inclusive.
func (c *Client) EnumerateMessages(ctx context.Context, chatID int64, fromID, toID int) ([]ingest.MessageRef, error) {
	slot := c.pool.Pick()
	defer slot.Release()

	history, err := slot.Client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     &tg.InputPeerChannel{ChannelID: chatID},
		OffsetID: toID + 1,
		AddOffset: 0,
		Limit:    toID - fromID + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate history: %s", apierr.ErrUpstreamUnavailable, err)
	}

	var msgs []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		msgs = h.Messages
	case *tg.MessagesMessagesSlice:
		msgs = h.Messages
	case *tg.MessagesMessages:
		msgs = h.Messages
	}

	refs := make([]ingest.MessageRef, 0, len(msgs))
	for _, m := range msgs {
		msg, ok := m.(*tg.Message)
		if !ok || msg.ID < fromID || msg.ID > toID {
			continue
		}
		if msg.Media == nil {
			continue
		}
		refs = append(refs, ingest.MessageRef{ChatID: chatID, MessageID: msg.ID})
	}
	return refs, nil
}

// LoadItem implements ingest.MessageEnumerator, converting a MessageRef into
// a queueable ingest.Item.
func (c *Client) LoadItem(ctx context.Context, ref ingest.MessageRef, useCaption bool) (*ingest.Item, error) {
	props, err := c.streamer.GetFileProperties(ctx, streamer.FileLocator{ChatID: ref.ChatID, MessageID: ref.MessageID})
	if err != nil {
		return nil, err
	}
	return &ingest.Item{
		ChatID:     ref.ChatID,
		MessageID:  ref.MessageID,
		FileName:   props.FileName,
		UseCaption: useCaption,
	}, nil
}

// ResolveLocator implements ingest.MediaFetcher.
func (c *Client) ResolveLocator(ctx context.Context, chatID int64, messageID int) (streamer.FileLocator, streamer.FileProperties, error) {
	loc := streamer.FileLocator{ChatID: chatID, MessageID: messageID}
	props, err := c.streamer.GetFileProperties(ctx, loc)
	return loc, props, err
}

// FirstChunk implements ingest.MediaFetcher, yielding up to budget bytes
// from the start of the file for media probing.
func (c *Client) FirstChunk(ctx context.Context, props streamer.FileProperties, budget int) ([]byte, error) {
	var buf []byte
	w := &sliceWriter{limit: budget, dst: &buf}
	end := int64(budget - 1)
	if end >= props.Size {
		end = props.Size - 1
	}
	if err := c.streamer.Yield(ctx, props, 0, end, w); err != nil {
		return nil, err
	}
	return buf, nil
}

// sliceWriter implements io.Writer, accumulating up to limit bytes.
type sliceWriter struct {
	limit int
	dst   *[]byte
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	remaining := w.limit - len(*w.dst)
	if remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	*w.dst = append(*w.dst, p...)
	return len(p), nil
}

func randomID() int64 {
	// Telegram only requires this to be unique per-client over a short
	// window; a process-local random value keeps the client stateless.
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	if v < 0 {
		v = -v
	}
	return v
}
