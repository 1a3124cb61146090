// Package discord posts duels to guild channels and turns button presses
// into votes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/service"
)

const (
	voteButtonPrefix = "duel_vote"
	maxAttempts      = 3
	baseRetryDelay   = 500 * time.Millisecond
)

// MessageSender is the part of a discordgo session the presenter uses
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Presenter announces duels and results in chat
type Presenter struct {
	sender MessageSender
	logger *zap.Logger
	delay  time.Duration
}

// NewPresenter creates a presenter on top of a session
func NewPresenter(sender MessageSender, logger *zap.Logger) *Presenter {
	return &Presenter{sender: sender, logger: logger.Named("discord"), delay: baseRetryDelay}
}

// DuelOpened posts both images with a vote button for each
func (p *Presenter) DuelOpened(ctx context.Context, a service.DuelAnnouncement) (*domain.MessageRef, error) {
	if a.ChannelID == "" {
		return nil, fmt.Errorf("guild %s has no duel channel", a.GuildID)
	}

	var msg *discordgo.Message
	err := p.withRetry(ctx, "send duel", func() error {
		var err error
		msg, err = p.sender.ChannelMessageSendComplex(a.ChannelID, duelMessage(a))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &domain.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// DuelResolved removes the buttons from the duel post and announces the result
func (p *Presenter) DuelResolved(ctx context.Context, a service.ResolutionAnnouncement) error {
	if prev := a.Previous; prev != nil {
		edit := discordgo.NewMessageEdit(prev.ChannelID, prev.MessageID)
		edit.Components = &[]discordgo.MessageComponent{}
		err := p.withRetry(ctx, "clear vote buttons", func() error {
			_, err := p.sender.ChannelMessageEditComplex(edit)
			return err
		})
		if err != nil {
			p.logger.Warn("Failed to clear vote buttons",
				zap.String("guild_id", a.GuildID),
				zap.String("message_id", prev.MessageID),
				zap.Error(err))
		}
	}

	if a.ChannelID == "" || a.Result == nil {
		return nil
	}
	return p.withRetry(ctx, "send result", func() error {
		_, err := p.sender.ChannelMessageSendComplex(a.ChannelID, resultMessage(a))
		return err
	})
}

// withRetry runs op up to three times with exponential backoff. Client
// errors other than rate limiting are returned at once.
func (p *Presenter) withRetry(ctx context.Context, what string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == maxAttempts-1 {
			break
		}

		delay := time.Duration(1<<attempt) * p.delay
		p.logger.Debug("Discord call failed, retrying",
			zap.String("op", what),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("discord %s failed: %w", what, lastErr)
}

func retryable(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

// VoteCustomID encodes a vote button
func VoteCustomID(duelID, competitorID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", voteButtonPrefix, duelID, competitorID)
}

// ParseVoteCustomID decodes a vote button
func ParseVoteCustomID(customID string) (duelID, competitorID uuid.UUID, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != voteButtonPrefix {
		return uuid.Nil, uuid.Nil, false
	}
	duelID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	competitorID, err = uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return duelID, competitorID, true
}

func duelMessage(a service.DuelAnnouncement) *discordgo.MessageSend {
	title := "Image Duel"
	color := 0x5865F2
	if a.IsWildcard {
		title = "Wildcard Duel"
		color = 0xFEE75C
	}
	description := fmt.Sprintf("Vote for your favourite! Voting ends <t:%d:R>.", a.EndsAt.Unix())

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			competitorEmbed(title, description, color, "A", a.CompetitorA, a.ImageURLA),
			competitorEmbed("", "", color, "B", a.CompetitorB, a.ImageURLB),
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Vote A",
					Style:    discordgo.PrimaryButton,
					CustomID: VoteCustomID(a.DuelID, a.CompetitorA.ID),
				},
				discordgo.Button{
					Label:    "Vote B",
					Style:    discordgo.SuccessButton,
					CustomID: VoteCustomID(a.DuelID, a.CompetitorB.ID),
				},
			}},
		},
	}
}

func competitorEmbed(title, description string, color int, side string, c domain.Competitor, imageURL string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: side, Value: displayTitle(&c), Inline: true},
			{Name: "Rating", Value: fmt.Sprintf("%d", c.Rating), Inline: true},
		},
		Image: &discordgo.MessageEmbedImage{URL: imageURL},
	}
}

func resultMessage(a service.ResolutionAnnouncement) *discordgo.MessageSend {
	r := a.Result
	embed := &discordgo.MessageEmbed{
		Title: "Duel result",
		Color: 0x57F287,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d votes", r.TotalVotes),
		},
	}

	if r.Outcome != domain.DuelOutcomeDecided {
		embed.Color = 0x99AAB5
		embed.Description = voidText(r.VoidReason)
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	}

	winner, loser := a.CompetitorA, a.CompetitorB
	if winner != nil && winner.ID != r.WinnerID {
		winner, loser = loser, winner
	}
	embed.Description = fmt.Sprintf("**%s** wins %d to %d!", displayTitle(winner), r.WinnerVotes, r.LoserVotes)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: displayTitle(winner), Value: fmt.Sprintf("%d (%+d)", r.WinnerRating, r.WinnerDelta), Inline: true},
		{Name: displayTitle(loser), Value: fmt.Sprintf("%d (%+d)", r.LoserRating, r.LoserDelta), Inline: true},
	}
	if r.IsWildcard {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Wildcard", Value: "Rating changes were boosted"})
	}
	if r.Retired {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Retired",
			Value: fmt.Sprintf("**%s** leaves the arena", displayTitle(loser)),
		})
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

func voidText(reason string) string {
	switch reason {
	case domain.VoidNoVotes:
		return "Nobody voted, so the duel was skipped."
	case domain.VoidTie:
		return "It's a tie! No ratings changed."
	case domain.VoidUploaderOnly:
		return "Only the uploaders voted, so the result doesn't count."
	case domain.VoidBelowMinimum:
		return "Not enough votes for the result to count."
	default:
		return "The duel ended without a winner."
	}
}

func displayTitle(c *domain.Competitor) string {
	switch {
	case c == nil:
		return "Unknown"
	case c.Title != "":
		return c.Title
	default:
		return "Image " + c.ID.String()[:8]
	}
}
