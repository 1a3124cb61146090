package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/service"
	apperrors "imageduel/pkg/errors"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []*discordgo.MessageSend
	edits     []*discordgo.MessageEdit
	sendErrs  []error
	editErr   error
	sendCalls int
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func (f *fakeSender) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, f.editErr
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func newTestPresenter(sender MessageSender) *Presenter {
	p := NewPresenter(sender, zap.NewNop())
	p.delay = time.Millisecond
	return p
}

func announcement() service.DuelAnnouncement {
	return service.DuelAnnouncement{
		GuildID:     "g1",
		ChannelID:   "c1",
		DuelID:      uuid.New(),
		CompetitorA: domain.Competitor{ID: uuid.New(), Title: "sunset", Rating: 1010},
		CompetitorB: domain.Competitor{ID: uuid.New(), Title: "forest", Rating: 990},
		ImageURLA:   "https://cdn.test/a.png",
		ImageURLB:   "https://cdn.test/b.png",
		EndsAt:      time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestVoteCustomID_RoundTrip(t *testing.T) {
	duelID, competitorID := uuid.New(), uuid.New()
	gotDuel, gotCompetitor, ok := ParseVoteCustomID(VoteCustomID(duelID, competitorID))
	require.True(t, ok)
	assert.Equal(t, duelID, gotDuel)
	assert.Equal(t, competitorID, gotCompetitor)

	for _, bad := range []string{"", "duel_vote", "other:" + duelID.String() + ":" + competitorID.String(), "duel_vote:x:y"} {
		_, _, ok := ParseVoteCustomID(bad)
		assert.False(t, ok, bad)
	}
}

func TestPresenter_DuelOpened(t *testing.T) {
	sender := &fakeSender{}
	a := announcement()

	ref, err := newTestPresenter(sender).DuelOpened(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, &domain.MessageRef{ChannelID: "c1", MessageID: "m1"}, ref)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	require.Len(t, msg.Embeds, 2)
	assert.Equal(t, "https://cdn.test/a.png", msg.Embeds[0].Image.URL)
	assert.Equal(t, "https://cdn.test/b.png", msg.Embeds[1].Image.URL)
	assert.Contains(t, msg.Embeds[0].Description, "<t:1772368200:R>")

	row, ok := msg.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	assert.Equal(t, VoteCustomID(a.DuelID, a.CompetitorA.ID), row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, VoteCustomID(a.DuelID, a.CompetitorB.ID), row.Components[1].(discordgo.Button).CustomID)
}

func TestPresenter_Retry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{name: "transient then ok", errs: []error{restError(502), nil}, wantCalls: 2},
		{name: "rate limited", errs: []error{restError(429), restError(429), nil}, wantCalls: 3},
		{name: "gives up after three", errs: []error{errors.New("eof"), errors.New("eof"), errors.New("eof"), nil}, wantErr: true, wantCalls: 3},
		{name: "forbidden is final", errs: []error{restError(403), nil}, wantErr: true, wantCalls: 1},
		{name: "not found is final", errs: []error{restError(404), nil}, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{sendErrs: tt.errs}
			_, err := newTestPresenter(sender).DuelOpened(context.Background(), announcement())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, sender.sendCalls)
		})
	}
}

func TestPresenter_DuelResolved(t *testing.T) {
	sender := &fakeSender{editErr: restError(404)}
	a, b := &domain.Competitor{ID: uuid.New(), Title: "sunset"}, &domain.Competitor{ID: uuid.New(), Title: "forest"}

	err := newTestPresenter(sender).DuelResolved(context.Background(), service.ResolutionAnnouncement{
		GuildID:     "g1",
		ChannelID:   "c1",
		Previous:    &domain.MessageRef{ChannelID: "c1", MessageID: "m0"},
		CompetitorA: a,
		CompetitorB: b,
		Result: &domain.ResolutionResult{
			Outcome:      domain.DuelOutcomeDecided,
			WinnerID:     b.ID,
			LoserID:      a.ID,
			WinnerVotes:  3,
			LoserVotes:   1,
			TotalVotes:   4,
			WinnerRating: 1016,
			LoserRating:  984,
			WinnerDelta:  16,
			LoserDelta:   -16,
			Retired:      true,
		},
	})
	require.NoError(t, err, "a failed button clear does not fail the announcement")

	require.Len(t, sender.edits, 1)
	assert.Equal(t, "m0", sender.edits[0].ID)
	require.NotNil(t, sender.edits[0].Components)
	assert.Empty(t, *sender.edits[0].Components)

	require.Len(t, sender.sent, 1)
	embed := sender.sent[0].Embeds[0]
	assert.Contains(t, embed.Description, "**forest** wins 3 to 1")
	assert.Equal(t, "1016 (+16)", embed.Fields[0].Value)
	assert.Equal(t, "984 (-16)", embed.Fields[1].Value)
	assert.Contains(t, embed.Fields[2].Value, "sunset")
}

func TestPresenter_VoidResult(t *testing.T) {
	sender := &fakeSender{}
	err := newTestPresenter(sender).DuelResolved(context.Background(), service.ResolutionAnnouncement{
		GuildID:   "g1",
		ChannelID: "c1",
		Result:    &domain.ResolutionResult{Outcome: domain.DuelOutcomeSkipped, VoidReason: domain.VoidTie, TotalVotes: 2},
	})
	require.NoError(t, err)
	assert.Empty(t, sender.edits)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, voidText(domain.VoidTie), sender.sent[0].Embeds[0].Description)
}

type fakeVoter struct {
	resp *domain.VoteResponse
	err  error
	got  []string
}

func (f *fakeVoter) CastVote(_ context.Context, guildID string, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (*domain.VoteResponse, error) {
	f.got = append(f.got, guildID, duelID.String(), voterID, competitorID.String())
	return f.resp, f.err
}

func TestBot_VoteReplies(t *testing.T) {
	customID := VoteCustomID(uuid.New(), uuid.New())

	tests := []struct {
		name     string
		voter    *fakeVoter
		customID string
		userID   string
		want     string
	}{
		{name: "recorded", voter: &fakeVoter{resp: &domain.VoteResponse{Message: "Vote recorded"}}, customID: customID, userID: "u1", want: "Vote recorded"},
		{name: "changed", voter: &fakeVoter{resp: &domain.VoteResponse{Message: "Vote changed"}}, customID: customID, userID: "u1", want: "Vote changed"},
		{name: "duplicate", voter: &fakeVoter{err: apperrors.NewDuplicateVoteError()}, customID: customID, userID: "u1", want: replyAlreadyVoted},
		{name: "stale", voter: &fakeVoter{err: apperrors.NewInvalidTargetError("gone")}, customID: customID, userID: "u1", want: replyNotActive},
		{name: "storage down", voter: &fakeVoter{err: errors.New("db down")}, customID: customID, userID: "u1", want: replyFailed},
		{name: "malformed button", voter: &fakeVoter{}, customID: "duel_vote:nope", userID: "u1", want: replyNotActive},
		{name: "no user", voter: &fakeVoter{}, customID: customID, userID: "", want: replyNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bot{voter: tt.voter, logger: zap.NewNop()}
			assert.Equal(t, tt.want, b.vote(context.Background(), "g1", tt.customID, tt.userID))
		})
	}
}

func TestInteractionUserID(t *testing.T) {
	assert.Equal(t, "m", interactionUserID(&discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "m"}}}))
	assert.Equal(t, "u", interactionUserID(&discordgo.Interaction{User: &discordgo.User{ID: "u"}}))
	assert.Empty(t, interactionUserID(&discordgo.Interaction{}))
}
