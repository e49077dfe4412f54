// Package postgres is the alternative durable store, selected with STORE_DRIVER=postgres.
package postgres

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	_ contract.Store   = (*Store)(nil)
	_ contract.History = (*Store)(nil)
)

const Schema = `
create table if not exists chat_messages (
	id         text        primary key,
	chat_id    bigint      not null,
	sender_id  text        not null,
	content    text        not null,
	sent_at    timestamptz not null,
	unique (chat_id, sender_id, sent_at)
);
create index if not exists chat_messages_chat_id_id on chat_messages (chat_id, id desc);
create table if not exists chat_members (
	chat_id   bigint      not null,
	user_id   text        not null,
	joined_at timestamptz not null default now(),
	primary key (chat_id, user_id)
);`

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Save ignores a second insert of the same (chat, sender, timestamp) so that
// a replayed task leaves a single row.
func (s *Store) Save(ctx context.Context, message domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		insert into chat_messages(id, chat_id, sender_id, content, sent_at)
		values ($1, $2, $3, $4, $5)
		on conflict (chat_id, sender_id, sent_at) do nothing
	`, message.ID, int64(message.ChatID), string(message.SenderID), message.Content, message.Timestamp.UTC())
	return classify(err)
}

func (s *Store) MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `select user_id from chat_members where chat_id = $1 order by user_id`, int64(chatID))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var members []domain.UserID
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, classify(err)
		}
		members = append(members, domain.UserID(userID))
	}
	return members, classify(rows.Err())
}

func (s *Store) IsMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from chat_members where chat_id = $1 and user_id = $2)`,
		int64(chatID), string(userID)).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (s *Store) AddMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`insert into chat_members(chat_id, user_id) values ($1, $2) on conflict do nothing`,
		int64(chatID), string(userID))
	return classify(err)
}

// GetMessages pages newest first. The cursor is the id of the last message
// returned, ids are ULIDs so they sort by creation time.
func (s *Store) GetMessages(ctx context.Context, chatID domain.ChatID, cursor *string, limit int) ([]domain.Message, *string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `select id, chat_id, sender_id, content, sent_at from chat_messages where chat_id = $1`
	args := []any{int64(chatID)}
	if cursor != nil {
		query += ` and id < $2 order by id desc limit $3`
		args = append(args, *cursor, limit)
	} else {
		query += ` order by id desc limit $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, classify(err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			chat   int64
			sender string
		)
		if err := rows.Scan(&m.ID, &chat, &sender, &m.Content, &m.Timestamp); err != nil {
			return nil, nil, classify(err)
		}
		m.ChatID = domain.ChatID(chat)
		m.SenderID = domain.UserID(sender)
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classify(err)
	}
	if len(messages) < limit {
		return messages, nil, nil
	}
	last := messages[len(messages)-1].ID
	return messages, &last, nil
}

// classify maps integrity violations (SQLSTATE class 23) to permanent failures,
// anything else is worth a retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return errors.Permanent(err)
	}
	return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
}
