package authz

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var alice = &domain.Identity{Subject: "alice"}

func TestNewPolicy_RequiresCatchAll(t *testing.T) {
	req := require.New(t)

	_, err := NewPolicy(nil)
	req.Error(err)

	_, err = NewPolicy([]Rule{{Pattern: "/topic/**", Authenticated: true}})
	req.Error(err)

	_, err = NewPolicy([]Rule{{Commands: []domain.Command{domain.SEND}, Pattern: "**"}})
	req.Error(err)

	policy, err := NewPolicy(DefaultRules())
	req.NoError(err)
	req.Len(policy.Rules(), len(DefaultRules()))
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	req := require.New(t)
	subscribe := []domain.Command{domain.SUBSCRIBE}

	// Given a public general rule listed before a protected specific one
	policy, err := NewPolicy([]Rule{
		{Commands: subscribe, Pattern: "/topic/**", Authenticated: false},
		{Commands: subscribe, Pattern: "/topic/chat/**", Authenticated: true},
		{Pattern: "**", Authenticated: true},
	})
	req.NoError(err)

	// Then the general rule shadows the specific one
	decision := policy.Evaluate(domain.SUBSCRIBE, "/topic/chat/42", nil)
	req.True(decision.Allow)
	req.Equal(0, decision.RuleIndex)

	// And commands that no specific rule names fall to the catch-all
	decision = policy.Evaluate(domain.SEND, "/topic/chat/42", nil)
	req.False(decision.Allow)
	req.Equal(2, decision.RuleIndex)
}

func TestPolicy_SubscribeToChatTopic(t *testing.T) {
	subscribe := []domain.Command{domain.SUBSCRIBE}
	protected, err := NewPolicy(DefaultRules())
	require.NoError(t, err)
	public, err := NewPolicy([]Rule{
		{Commands: subscribe, Pattern: "/topic/chat/**", Authenticated: false},
		{Pattern: "**", Authenticated: true},
	})
	require.NoError(t, err)

	frame := domain.Frame{Command: domain.SUBSCRIBE, Destination: "/topic/chat/42"}

	t.Run("Denied when the rule requires authentication", func(t *testing.T) {
		req := require.New(t)
		req.ErrorIs(protected.Check(frame), errors.ErrDenied)
		req.NoError(protected.Check(frame.WithIdentity(*alice)))
	})

	t.Run("Allowed when the pattern is public", func(t *testing.T) {
		require.NoError(t, public.Check(frame))
	})
}

func TestPolicy_DefaultRules(t *testing.T) {
	policy, err := NewPolicy(DefaultRules())
	require.NoError(t, err)

	tests := []struct {
		command     domain.Command
		destination string
		identity    *domain.Identity
		allow       bool
	}{
		{domain.OPEN, "", nil, true},
		{domain.SEND, "/app/chat/7", nil, false},
		{domain.SEND, "/app/chat/7", alice, true},
		{domain.SUBSCRIBE, "/user/queue/chat/7", nil, false},
		{domain.SUBSCRIBE, "/user/queue/chat/7", alice, true},
		{domain.SUBSCRIBE, "/topic/user/alice/chats", nil, false},
		{domain.SUBSCRIBE, "/queue/anything", nil, false},
		{domain.SEND, "/topic/chat/7", nil, false},
		{domain.OTHER, "", nil, true},
		{domain.SUBSCRIBE, "/somewhere/else", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.command.String()+" "+tt.destination, func(t *testing.T) {
			require.Equal(t, tt.allow, policy.Evaluate(tt.command, tt.destination, tt.identity).Allow)
		})
	}
}

func TestPolicy_Totality(t *testing.T) {
	policy, err := NewPolicy(DefaultRules())
	require.NoError(t, err)

	commands := []domain.Command{domain.OPEN, domain.SUBSCRIBE, domain.SEND, domain.OTHER}
	destinations := []string{"", "/", "/app/chat/1", "/topic/chat/1", "/topic/chat/1/error",
		"/user/queue/chat/1", "/user/bob/queue/chat/1", "/queue/x", "/random", "/topic/user/a/chats"}
	identities := []*domain.Identity{nil, alice}

	// Every combination receives exactly one decision from a real rule
	for _, c := range commands {
		for _, d := range destinations {
			for _, i := range identities {
				decision := policy.Evaluate(c, d, i)
				require.GreaterOrEqual(t, decision.RuleIndex, 0, "%s %s", c, d)
			}
		}
	}
}
