package main

import (
	"chat-gateway/contract"
	"chat-gateway/repositories"
	"chat-gateway/repositories/postgres"
	"context"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// backend holds what a command needs. close releases everything that was opened.
type backend struct {
	db          *badger.DB
	chats       *repositories.ChatRepository
	deadLetters *repositories.DeadLetterRepository
	store       contract.Store
	postgres    *postgres.Store
}

func openBackend(ctx context.Context) (*backend, error) {
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s (is the gateway still running?): %w", config.BadgerFilepath, err)
	}
	chats, err := repositories.NewChatRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b := &backend{
		db:          db,
		chats:       chats,
		deadLetters: repositories.NewDeadLetterRepository(db),
	}

	if config.StoreDriver == "postgres" {
		pg, err := postgres.Open(config.PostgresDSN)
		if err != nil {
			b.close()
			return nil, err
		}
		b.postgres = pg
		if err := pg.Migrate(ctx); err != nil {
			b.close()
			return nil, err
		}
		b.store = pg
	} else {
		log := logs.GetLoggerFromString(config.LogLevel)
		b.store = repositories.NewBadgerStore(repositories.NewMessageRepository(db, log), chats)
	}
	return b, nil
}

func (b *backend) close() {
	if b.postgres != nil {
		_ = b.postgres.Close()
	}
	_ = b.chats.Close()
	_ = b.db.Close()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
