package main

import (
	"chat-gateway/repositories"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		prefix string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump raw Badger records under a key prefix",
		Long: `Dump raw Badger records under a key prefix (msg:, chat:, member:, membership:, dlq:).
The database is opened read-only, a running gateway is not disturbed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := badger.DefaultOptions(config.BadgerFilepath).
				WithReadOnly(true).
				WithBypassLockGuard(true).
				WithLogger(nil)
			db, err := badger.Open(opts)
			if err != nil {
				return fmt.Errorf("open badger at %s: %w", config.BadgerFilepath, err)
			}
			defer func() { _ = db.Close() }()

			table := newTable(cmd.OutOrStdout(), "Key", "Type", "Detail")
			err = db.View(func(txn *badger.Txn) error {
				it := txn.NewIterator(badger.DefaultIteratorOptions)
				defer it.Close()

				rows := 0
				prefixBytes := []byte(prefix)
				for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
					if limit > 0 && rows == limit {
						break
					}
					item := it.Item()
					err := item.Value(func(v []byte) error {
						record := repositories.Describe(string(item.Key()), v)
						table.Append([]string{string(item.Key()), record.Kind, record.Detail})
						return nil
					})
					if err != nil {
						return err
					}
					rows++
				}
				return nil
			})
			if err != nil {
				return err
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "msg:", "Key prefix to scan")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows, 0 for all")
	return cmd
}
