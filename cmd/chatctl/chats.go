package main

import (
	"chat-gateway/domain"
	"fmt"
	"strconv"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage chats and their members",
	}
	cmd.AddCommand(newChatsCreateCmd(), newChatsAddMemberCmd(), newChatsMembersCmd())
	return cmd
}

func parseChatID(raw string) (domain.ChatID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q", raw)
	}
	return domain.ChatID(id), nil
}

func newChatsCreateCmd() *cobra.Command {
	var chatType, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chat and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			chat, err := b.chats.CreateChat(cmd.Context(), chatType, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), chat.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&chatType, "type", "group", "Chat type")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newChatsAddMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <chat-id> <user-id>...",
		Short: "Add users to a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			for _, raw := range args[1:] {
				userID := domain.UserID(raw)
				if err := b.chats.AddMember(cmd.Context(), chatID, userID); err != nil {
					return err
				}
				// Postgres serves MembersOf in that mode, it needs the row too.
				if b.postgres != nil {
					if err := b.postgres.AddMember(cmd.Context(), chatID, userID); err != nil {
						return err
					}
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.Green.Sprintf("added %s to chat %d", userID, chatID))
			}
			return nil
		},
	}
}

func newChatsMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <chat-id>",
		Short: "List the members of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			chat, err := b.chats.GetChat(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			members, err := b.store.MembersOf(cmd.Context(), chatID)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), "Chat", "Name", "Member")
			for _, member := range members {
				table.Append([]string{strconv.FormatInt(int64(chat.ID), 10), chat.Name, string(member)})
			}
			table.Render()
			return nil
		},
	}
}
