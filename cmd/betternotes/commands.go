package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/document"
	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
	"github.com/MarcoPoloResearchLab/betternotes/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const listPreviewLength = 48

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the note API and change stream over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes in load order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				return printNoteList(cmd.OutOrStdout(), runtime.controller.Notes(), runtime.store.ActiveID())
			})
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note as plain text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				note, ok := runtime.store.Get(args[0])
				if !ok {
					return fmt.Errorf("note %q: %w", args[0], notes.ErrNoteNotFound)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, note.Title)
				fmt.Fprintln(out, strings.Repeat("-", len([]rune(note.Title))))
				fmt.Fprintln(out, document.PlainText(note.Document()))
				return nil
			})
		},
	}
}

func newNewCommand() *cobra.Command {
	var (
		title string
		text  string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a note and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				doc := document.Default()
				if cmd.Flags().Changed("text") {
					doc = document.FromText(text)
				}
				created, err := runtime.controller.CreateNoteWith(cmd.Context(), title, doc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", notes.NewNoteTitle, "Title for the new note")
	cmd.Flags().StringVar(&text, "text", "", "Plain text body, one paragraph per line")
	return cmd
}

func newRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a note title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				_, err := runtime.controller.UpdateTitle(cmd.Context(), args[0], args[1])
				return err
			})
		},
	}
}

func newWriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write <id> [text]",
		Short: "Replace a note body with plain text from the argument or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 2 {
				text = args[1]
			} else {
				input, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = strings.TrimRight(string(input), "\n")
			}
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				_, err := runtime.controller.UpdateContent(cmd.Context(), args[0], document.FromText(text))
				return err
			})
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(runtime *appRuntime) error {
				if _, removed := runtime.controller.DeleteNote(cmd.Context(), args[0]); !removed {
					runtime.logger.Warn("note not present in store", zap.String("note_id", args[0]))
				}
				return nil
			})
		},
	}
}

// withRuntime runs fn against a freshly loaded store and flushes pending writes before returning.
func withRuntime(ctx context.Context, fn func(*appRuntime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runtime, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	runErr := fn(runtime)
	closeErr := runtime.close()
	return errors.Join(runErr, closeErr)
}

func printNoteList(out io.Writer, list []notes.Note, activeID string) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\tID\tTITLE\tUPDATED\tPREVIEW")
	for _, note := range list {
		marker := ""
		if note.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			marker,
			note.ID,
			note.Title,
			notes.FormatTimestamp(note.UpdatedAt),
			document.Preview(note.Document(), listPreviewLength),
		)
	}
	return writer.Flush()
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runtime, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer runtime.close() //nolint:errcheck

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Controller:     runtime.controller,
		Realtime:       server.NewRealtimeDispatcher(),
		Logger:         runtime.logger,
		AllowedOrigins: runtime.config.HTTPAllowedOrigins,
		Clock:          time.Now,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event streams end when the process is asked to stop.
	httpServer := &http.Server{
		Addr:    runtime.config.HTTPAddress,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return signalCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		runtime.logger.Info("server starting",
			zap.String("address", runtime.config.HTTPAddress),
			zap.String("driver", runtime.config.StorageDriver),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
