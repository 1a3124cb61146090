package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	apperrors "imageduel/pkg/errors"
)

const (
	replyAlreadyVoted = "You already voted for this image"
	replyNotActive    = "This duel is no longer active"
	replyFailed       = "Something went wrong, please try again"
	voteTimeout       = 5 * time.Second
)

// VoteCaster records a button vote in a guild's open window
type VoteCaster interface {
	CastVote(ctx context.Context, guildID string, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (*domain.VoteResponse, error)
}

// Bot owns the gateway session
type Bot struct {
	session *discordgo.Session
	voter   VoteCaster
	logger  *zap.Logger
}

// NewBot creates a session for the bot token. Open must be called to connect.
func NewBot(token string, voter VoteCaster, logger *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{session: session, voter: voter, logger: logger.Named("discord")}
	session.AddHandler(b.handleReady)
	session.AddHandler(b.handleInteraction)
	return b, nil
}

// Session is used to build the presenter
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Open connects to the gateway
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Discord bot connected",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	customID := i.MessageComponentData().CustomID
	if _, _, ok := ParseVoteCustomID(customID); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), voteTimeout)
	defer cancel()

	reply := b.vote(ctx, i.GuildID, customID, interactionUserID(i.Interaction))
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("Failed to reply to vote",
			zap.String("guild_id", i.GuildID),
			zap.Error(err))
	}
}

// vote casts the vote a button press stands for and returns the reply text
func (b *Bot) vote(ctx context.Context, guildID, customID, userID string) string {
	duelID, competitorID, ok := ParseVoteCustomID(customID)
	if !ok || guildID == "" || userID == "" {
		return replyNotActive
	}

	resp, err := b.voter.CastVote(ctx, guildID, duelID, userID, competitorID)
	if err == nil {
		return resp.Message
	}

	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeDuplicateVote):
		return replyAlreadyVoted
	case apperrors.IsType(err, apperrors.ErrorTypeInvalidTarget):
		return replyNotActive
	default:
		b.logger.Error("Failed to record vote",
			zap.String("guild_id", guildID),
			zap.String("duel_id", duelID.String()),
			zap.Error(err))
		return replyFailed
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}
