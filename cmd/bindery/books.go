package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bindery/bindery/internal/downloads"
)

func newBooksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage tracked books",
	}

	var book downloads.TrackedBook
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Start tracking a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			book.Title = args[0]
			sess := a.store.Begin(cmd.Context())
			defer sess.Rollback() //nolint:errcheck // no-op after commit
			if err := sess.BookRepo().Create(cmd.Context(), &book); err != nil {
				return err
			}
			if err := sess.Commit(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracking book %d: %s\n", book.ID, book.Title)
			return nil
		},
	}
	add.Flags().StringVar(&book.Author, "author", "", "Author")
	add.Flags().StringVar(&book.ISBN, "isbn", "", "ISBN")

	cmd.AddCommand(add)
	return cmd
}
