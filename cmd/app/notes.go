package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/scribe/internal"
	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/render"
)

func notesCommand() *cli.Command {
	return &cli.Command{
		Name:  "notes",
		Usage: "List, read, and edit notes",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List notes, optionally filtered",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Only notes whose title or content contains this text"},
				},
				Action: listNotes,
			},
			{
				Name:      "show",
				Usage:     "Print one note",
				ArgsUsage: "<id>",
				Action:    showNote,
			},
			{
				Name:  "create",
				Usage: "Create a manual note",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Note title"},
					&cli.StringFlag{Name: "content", Usage: "Note body; - reads stdin"},
				},
				Action: createNote,
			},
			{
				Name:      "edit",
				Usage:     "Change the title or content of a note",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title (unchanged when omitted)"},
					&cli.StringFlag{Name: "content", Usage: "New body; - reads stdin (unchanged when omitted)"},
				},
				Action: editNote,
			},
			{
				Name:      "delete",
				Usage:     "Delete a note after confirmation",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: deleteNote,
			},
		},
	}
}

func requireID(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", apperr.Validation("a note id is required")
	}
	return id, nil
}

// content returns the --content value, reading stdin for "-".
func content(cmd *cli.Command) (string, error) {
	v := cmd.String("content")
	if v != "-" {
		return v, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func listNotes(ctx context.Context, cmd *cli.Command) error {
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	all, err := core.Notes.List(ctx)
	if err != nil {
		return err
	}
	if q := cmd.String("search"); q != "" {
		found := render.Filter(all, q)
		if len(found) == 0 {
			fmt.Println("No notes found")
			return nil
		}
		all = found
	}
	return render.WriteList(os.Stdout, all)
}

func showNote(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	n, err := lookup(ctx, core, id)
	if err != nil {
		return err
	}
	return render.WriteNote(os.Stdout, &n)
}

// lookup fetches one note, reporting a missing id as "Note not found".
func lookup(ctx context.Context, core *internal.Core, id string) (models.Note, error) {
	n, err := core.Notes.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return n, apperr.NotFound("Note not found")
	}
	return n, err
}

func createNote(ctx context.Context, cmd *cli.Command) error {
	body, err := content(cmd)
	if err != nil {
		return err
	}
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	n, err := core.Notes.Create(ctx, notes.Draft{Title: cmd.String("title"), Content: body})
	if err != nil {
		return err
	}
	fmt.Printf("Note created successfully! (%s)\n", n.ID)
	return nil
}

func editNote(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	current, err := lookup(ctx, core, id)
	if err != nil {
		return err
	}
	if p := render.Present(&current); !p.Editable {
		return apperr.Validation("%s notes cannot be edited", p.Label)
	}

	d := notes.Draft{Title: current.Title, Content: current.Content}
	if cmd.IsSet("title") {
		d.Title = cmd.String("title")
	}
	if cmd.IsSet("content") {
		if d.Content, err = content(cmd); err != nil {
			return err
		}
	}
	if _, err := core.Notes.Update(ctx, id, d); err != nil {
		return err
	}
	fmt.Println("Note saved successfully!")
	return nil
}

func deleteNote(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	n, err := lookup(ctx, core, id)
	if err != nil {
		return err
	}

	confirm := func() bool {
		if cmd.Bool("yes") {
			return true
		}
		fmt.Fprintf(os.Stderr, "%s [y/N] ", notes.DeletePrompt(n.Title))
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
	err = core.Notes.Delete(ctx, id, confirm)
	switch {
	case errors.Is(err, apperr.ErrCancelled):
		fmt.Println("Cancelled")
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete note: %w", err)
	}
	fmt.Println("Note deleted successfully!")
	return nil
}
