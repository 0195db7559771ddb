package telegramreader

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/panwatch/panwatch/internal/api"
)

// DiagnoseChannels probes every monitored channel, database rows plus
// configured defaults, and splits them into reachable and broken sets.
func (r *Reader) DiagnoseChannels(ctx context.Context) ([]api.ChannelDiagnosis, []api.ChannelDiagnosis, error) {
	stored, err := r.database.ListChannels(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list channels: %w", err)
	}

	tgAPI := tg.NewClient(r.client)

	var valid, invalid []api.ChannelDiagnosis

	for _, username := range mergeChannels(stored, r.cfg.Telegram.DefaultChannels) {
		channel, err := r.resolveChannel(ctx, tgAPI, username)
		if err != nil {
			r.logger.Warn().Err(err).Str("channel", username).Msg("channel diagnosis failed")

			invalid = append(invalid, api.ChannelDiagnosis{
				Username: username,
				Error:    err.Error(),
			})

			continue
		}

		participants, _ := channel.GetParticipantsCount()

		valid = append(valid, api.ChannelDiagnosis{
			Username:     username,
			Title:        channel.Title,
			ID:           channel.ID,
			Participants: participants,
		})
	}

	return valid, invalid, nil
}

// TestMonitor verifies the client can reach a monitored channel and
// pull at least one history entry from it.
func (r *Reader) TestMonitor(ctx context.Context) (*api.MonitorTest, error) {
	channels, err := r.database.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	if len(channels) == 0 {
		return &api.MonitorTest{Error: "没有有效的频道可供监听"}, nil
	}

	tgAPI := tg.NewClient(r.client)

	channel, err := r.resolveChannel(ctx, tgAPI, channels[0].Username)
	if err != nil {
		return &api.MonitorTest{ChannelsTested: len(channels), Error: err.Error()}, nil
	}

	history, err := tgAPI.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer: &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		Limit: 1,
	})
	if err != nil {
		return &api.MonitorTest{ChannelsTested: len(channels), Error: err.Error()}, nil
	}

	received := false

	switch h := history.(type) {
	case *tg.MessagesMessages:
		received = len(h.Messages) > 0
	case *tg.MessagesMessagesSlice:
		received = len(h.Messages) > 0
	case *tg.MessagesChannelMessages:
		received = len(h.Messages) > 0
	}

	return &api.MonitorTest{
		Success:         true,
		ChannelsTested:  len(channels),
		MessageReceived: received,
		Message:         "测试完成",
	}, nil
}
