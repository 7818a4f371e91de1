package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/parley/internal/agent"
	"github.com/apexion-ai/parley/internal/session"
)

func newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List saved conversations, most recent first",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store session.Store) error {
					infos, err := store.List()
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), agent.FormatConversations(infos, ""))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store session.Store) error {
					conv, err := loadByPrefix(store, args[0])
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s  %s\n", conv.ID, conv.Title)
					fmt.Fprintf(out, "created %s, updated %s\n\n",
						conv.CreatedAt.Local().Format("2006-01-02 15:04"),
						conv.UpdatedAt.Local().Format("2006-01-02 15:04"))
					for _, msg := range conv.Messages {
						fmt.Fprintf(out, "%s:\n%s\n\n", msg.Role, msg.Content)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"delete"},
			Short:   "Delete a conversation",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store session.Store) error {
					infos, err := store.List()
					if err != nil {
						return err
					}
					id, err := agent.ResolveConversation(infos, args[0])
					if err != nil {
						return err
					}
					if err := store.Delete(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

// withStore runs fn against the configured store without building a provider.
func withStore(fn func(session.Store) error) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.store)
}

// loadByPrefix loads the conversation named by an id prefix or list number.
func loadByPrefix(store session.Store, arg string) (*session.Conversation, error) {
	infos, err := store.List()
	if err != nil {
		return nil, err
	}
	id, err := agent.ResolveConversation(infos, arg)
	if err != nil {
		return nil, err
	}
	return store.Load(id)
}
