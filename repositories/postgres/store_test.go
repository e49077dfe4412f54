package postgres

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestStore_Save_Ignores_Duplicates(t *testing.T) {
	req := require.New(t)
	store, mock := newMock(t)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	message := domain.Message{ID: "01J00000000000000000000001", ChatID: 7, SenderID: "alice", Content: "hi", Timestamp: at}

	mock.ExpectExec("insert into chat_messages.*on conflict \\(chat_id, sender_id, sent_at\\) do nothing").
		WithArgs(message.ID, int64(7), "alice", "hi", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into chat_messages").
		WithArgs(message.ID, int64(7), "alice", "hi", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req.NoError(store.Save(context.Background(), message))
	req.NoError(store.Save(context.Background(), message))
	req.NoError(mock.ExpectationsWereMet())
}

func TestStore_Save_Classifies_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"Connection lost", fmt.Errorf("connection reset by peer"), true},
		{"Not null violation", &pgconn.PgError{Code: "23502"}, false},
		{"Serialization failure", &pgconn.PgError{Code: "40001"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			store, mock := newMock(t)
			mock.ExpectExec("insert into chat_messages").WillReturnError(tt.err)

			err := store.Save(context.Background(), domain.Message{ID: "x", ChatID: 1, SenderID: "a", Timestamp: time.Now()})

			req.Error(err)
			req.Equal(tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestStore_MembersOf(t *testing.T) {
	req := require.New(t)
	store, mock := newMock(t)
	mock.ExpectQuery("select user_id from chat_members where chat_id = \\$1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice").AddRow("bob"))

	members, err := store.MembersOf(context.Background(), 7)

	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, members)
	req.NoError(mock.ExpectationsWereMet())
}

func TestStore_IsMember(t *testing.T) {
	req := require.New(t)
	store, mock := newMock(t)
	mock.ExpectQuery("select exists").
		WithArgs(int64(7), "mallory").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	isMember, err := store.IsMember(context.Background(), 7, "mallory")

	req.NoError(err)
	req.False(isMember)
}

func TestStore_GetMessages_Pages_By_Id(t *testing.T) {
	req := require.New(t)
	store, mock := newMock(t)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	columns := []string{"id", "chat_id", "sender_id", "content", "sent_at"}

	mock.ExpectQuery("select id, chat_id, sender_id, content, sent_at from chat_messages where chat_id = \\$1 order by id desc limit \\$2").
		WithArgs(int64(7), 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("03", int64(7), "bob", "third", at.Add(2*time.Second)).
			AddRow("02", int64(7), "alice", "second", at.Add(time.Second)))
	mock.ExpectQuery("and id < \\$2 order by id desc limit \\$3").
		WithArgs(int64(7), "02", 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("01", int64(7), "alice", "first", at))

	page, cursor, err := store.GetMessages(context.Background(), 7, nil, 2)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("third", page[0].Content)
	req.NotNil(cursor)
	req.Equal("02", *cursor)

	page, cursor, err = store.GetMessages(context.Background(), 7, cursor, 2)
	req.NoError(err)
	req.Len(page, 1)
	req.Nil(cursor)
	req.NoError(mock.ExpectationsWereMet())
}

func TestStore_Migrate(t *testing.T) {
	req := require.New(t)
	store, mock := newMock(t)
	mock.ExpectExec("create table if not exists chat_messages").WillReturnError(fmt.Errorf("permission denied"))

	req.ErrorContains(store.Migrate(context.Background()), "permission denied")
}

func TestStore_Ping(t *testing.T) {
	req := require.New(t)
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	req.NoError(err)
	defer func() { _ = db.Close() }()
	store := New(db)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(fmt.Errorf("connection refused"))

	req.NoError(store.Ping(context.Background()))
	req.ErrorIs(store.Ping(context.Background()), errors.ErrStoreUnavailable)
	req.NoError(mock.ExpectationsWereMet())
}
