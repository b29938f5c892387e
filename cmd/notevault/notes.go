package main

import (
	"github.com/MrEthical07/notevault/client"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/spf13/cobra"
)

func (a *app) notesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Read and write encrypted notes",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			return describe(a.unlocked(cmd.Context()))
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.session.Lock()
		},
	}
	cmd.AddCommand(
		a.notesListCmd(),
		a.notesAddCmd(),
		a.notesShowCmd(),
		a.notesEditCmd(),
		a.notesFavoriteCmd(),
		a.notesRemoveCmd(),
		a.notesRestoreCmd(),
		a.notesPurgeCmd(),
	)
	return cmd
}

func (a *app) notesListCmd() *cobra.Command {
	var f notes.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.session.ListNotes(cmd.Context(), f)
			if err != nil {
				return describe(err)
			}
			a.out.noteList(list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.Favorite, "favorites", false, "only favorites")
	cmd.Flags().BoolVar(&f.Deleted, "trash", false, "list the trash instead")
	return cmd
}

func (a *app) notesAddCmd() *cobra.Command {
	var in client.NoteInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note; the body is read from --body or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Body == "" {
				body, err := a.prompt.rest()
				if err != nil {
					return err
				}
				if body == "" {
					if body, err = a.prompt.line("Body: "); err != nil {
						return err
					}
				}
				in.Body = body
			}
			n, err := a.session.CreateNote(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			a.out.ok("Note %s created", n.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "note title")
	cmd.Flags().StringVarP(&in.Body, "body", "b", "", "note body")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag, repeatable")
	cmd.Flags().BoolVar(&in.IsFavorite, "favorite", false, "mark as favorite")
	return cmd
}

func (a *app) notesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Decrypt and print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.session.GetNote(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}
			return a.out.note(n)
		},
	}
}

func (a *app) notesEditCmd() *cobra.Command {
	var title, body string
	var tags []string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title, body or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u client.NoteUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("body") {
				u.Body = &body
			}
			if cmd.Flags().Changed("tag") {
				u.Tags = &tags
			}
			n, err := a.session.UpdateNote(cmd.Context(), args[0], u)
			if err != nil {
				return describe(err)
			}
			a.out.ok("Note %s updated", n.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&body, "body", "b", "", "new body")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags, repeatable")
	return cmd
}

func (a *app) notesFavoriteCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Mark or unmark a note as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fav := !off
			if _, err := a.session.UpdateNote(cmd.Context(), args[0], client.NoteUpdate{IsFavorite: &fav}); err != nil {
				return describe(err)
			}
			if fav {
				a.out.ok("Added to favorites")
			} else {
				a.out.ok("Removed from favorites")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "unmark instead")
	return cmd
}

func (a *app) notesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Move a note to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.TrashNote(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			a.out.ok("Note moved to trash")
			return nil
		},
	}
}

func (a *app) notesRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a note from the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.session.RestoreNote(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			a.out.ok("Note restored")
			return nil
		},
	}
}

func (a *app) notesPurgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <id>",
		Short: "Permanently delete a trashed note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := a.prompt.line("Delete permanently? This cannot be undone [y/N]: ")
				if err != nil {
					return err
				}
				if answer != "y" && answer != "Y" {
					a.out.warn("Aborted")
					return nil
				}
			}
			if err := a.session.PurgeNote(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			a.out.ok("Note permanently deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
