package runtime

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/mocks"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegistry_Subscribe_One_Destination_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	sub1 := mocks.NewMockSubscriber(ctrl)
	sub2 := mocks.NewMockSubscriber(ctrl)
	destination := domain.ChatTopic(42)

	// Given two sessions subscribed to the same topic
	registry.Subscribe("s1", "sub-0", destination, sub1)
	registry.Subscribe("s2", "sub-0", destination, sub2)
	req.ElementsMatch([]domain.SessionID{"s1", "s2"}, registry.Subscribers(destination))

	// Then both receive the payload with their own subscription id
	sub1.EXPECT().Deliver(gomock.Any(), destination, "sub-0", []byte("hello")).Return(nil).Times(1)
	sub2.EXPECT().Deliver(gomock.Any(), destination, "sub-0", []byte("hello")).Return(nil).Times(1)
	req.NoError(registry.Deliver(context.Background(), destination, []byte("hello")))
}

func TestRegistry_Deliver_No_Subscriber(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	err := registry.Deliver(context.Background(), domain.ChatTopic(1), []byte("x"))
	req.ErrorIs(err, errors.ErrNoSubscriber)
}

func TestRegistry_Deliver_Partial_Failure_Is_Not_An_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	slow := mocks.NewMockSubscriber(ctrl)
	live := mocks.NewMockSubscriber(ctrl)
	destination := domain.ChatTopic(3)

	registry.Subscribe("s1", "a", destination, slow)
	registry.Subscribe("s2", "b", destination, live)

	slow.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("buffer full"))
	live.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	req.NoError(registry.Deliver(context.Background(), destination, []byte("x")))

	// When every subscriber fails, the destination counts as missed
	slow.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("buffer full"))
	live.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("closed"))
	req.Error(registry.Deliver(context.Background(), destination, []byte("x")))
}

func TestRegistry_Unsubscribe(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	sub := mocks.NewMockSubscriber(ctrl)

	registry.Subscribe("s1", "sub-0", domain.ChatTopic(1), sub)
	registry.Unsubscribe("s1", "sub-0")

	// Then no subscription and no empty set is left
	req.Empty(registry.Subscribers(domain.ChatTopic(1)))
	req.Empty(registry.byDestination)
	req.Empty(registry.bySession)

	// Unknown ids are ignored
	registry.Unsubscribe("s1", "sub-0")
	registry.Unsubscribe("nobody", "x")
}

func TestRegistry_Resubscribe_Same_Id_Moves_Destination(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	sub := mocks.NewMockSubscriber(ctrl)

	registry.Subscribe("s1", "sub-0", domain.ChatTopic(1), sub)
	registry.Subscribe("s1", "sub-0", domain.ChatTopic(2), sub)

	req.Empty(registry.Subscribers(domain.ChatTopic(1)))
	req.Equal([]domain.SessionID{"s1"}, registry.Subscribers(domain.ChatTopic(2)))
}

func TestRegistry_RemoveSession_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	closing := mocks.NewMockSubscriber(ctrl)
	staying := mocks.NewMockSubscriber(ctrl)

	// Given a session subscribed to a topic and its private queue
	registry.Subscribe("s1", "topic", domain.ChatTopic(7), closing)
	registry.Subscribe("s1", "queue", domain.UserQueue("alice", 7), closing)
	registry.Subscribe("s2", "topic", domain.ChatTopic(7), staying)

	// When the session closes
	registry.RemoveSession("s1")

	// Then it receives nothing anymore
	staying.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	closing.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	req.NoError(registry.Deliver(context.Background(), domain.ChatTopic(7), []byte("x")))
	req.ErrorIs(registry.Deliver(context.Background(), domain.UserQueue("alice", 7), []byte("x")), errors.ErrNoSubscriber)
	req.NotContains(registry.bySession, domain.SessionID("s1"))
}
