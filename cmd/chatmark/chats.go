package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chatmark/internal/command"
	"chatmark/internal/dom"
	"chatmark/internal/domain"
	"chatmark/internal/export"
	"chatmark/internal/scanner"

	"github.com/spf13/cobra"
)

// withApp runs fn against a freshly opened pipeline.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// checked turns an unsuccessful response into an error.
func checked(resp domain.Response, err error) (domain.Response, error) {
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func importCmd() *cobra.Command {
	var pageURL string
	var bookmark bool
	cmd := &cobra.Command{
		Use:   "import <file.html>",
		Short: "Scan a saved chat page and store its messages",
		Long: `Parses a chat page saved from the browser and runs one scan over it, as a
tracker would on the live page. --url is the address the page was saved from; it
selects the site adapter and the chat id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.importFile(ctx, args[0], pageURL, bookmark)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderChat(res))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "URL the page was saved from (required)")
	cmd.Flags().BoolVar(&bookmark, "bookmark", false, "also save a bookmark for the chat")
	cmd.MarkFlagRequired("url")
	return cmd
}

// importFile scans the HTML document at path as the page at pageURL and returns
// the stored chat.
func (a *app) importFile(ctx context.Context, path, pageURL string, bookmark bool) (domain.Chat, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Chat{}, err
	}
	defer f.Close()

	doc, err := dom.Parse(pageURL, f)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("parse %s: %w", path, err)
	}

	tr := scanner.New(scanner.Config{
		Page:      doc,
		Sites:     a.sites,
		Publisher: a.client,
		Logger:    a.logger,
	})
	if err := tr.Scan(ctx); err != nil {
		return domain.Chat{}, err
	}
	if len(tr.Tracked()) == 0 {
		return domain.Chat{}, fmt.Errorf("no messages found in %s", path)
	}
	if bookmark {
		if _, err := tr.Bookmark(ctx); err != nil {
			return domain.Chat{}, err
		}
	}

	chatID := tr.ChatID()
	chat, err := a.chat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	a.logger.Info("page imported", "chat_id", chatID, "messages", len(chat.Messages))
	return chat, nil
}

// chat looks up one stored chat through the command surface.
func (a *app) chat(ctx context.Context, chatID string) (domain.Chat, error) {
	resp, err := checked(a.client.GetAllChats(ctx))
	if err != nil {
		return domain.Chat{}, err
	}
	c, ok := resp.Chats[chatID]
	if !ok {
		return domain.Chat{}, fmt.Errorf("chat %s not found", chatID)
	}
	c.ID = chatID
	return c, nil
}

func (a *app) chats(ctx context.Context, search string) ([]domain.Chat, error) {
	resp, err := checked(a.client.GetAllChats(ctx))
	if err != nil {
		return nil, err
	}
	return command.FilterChats(resp.Chats, search), nil
}

func listCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked chats, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				chats, err := a.chats(ctx, search)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderChats(chats))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only chats whose title or site contains this text")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <chatId>",
		Short: "Show the tracked messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				c, err := a.chat(ctx, args[0])
				if err != nil {
					return err
				}
				resp, err := checked(a.client.GetMessages(ctx, args[0]))
				if err != nil {
					return err
				}
				c.Messages = resp.Messages
				fmt.Fprint(cmd.OutOrStdout(), renderChat(c))
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chatId>",
		Short: "Delete a tracked chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := checked(a.client.DeleteChat(ctx, args[0])); err != nil {
					return fmt.Errorf("delete %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted chat %s\n", args[0])
				return nil
			})
		},
	}
}

func bookmarksCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "List bookmarked chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				resp, err := checked(a.client.GetBookmarks(ctx))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderBookmarks(command.FilterBookmarks(resp.Bookmarks, search)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only bookmarks whose title or site contains this text")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <chatId>",
		Short: "Remove every bookmark of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := checked(a.client.DeleteBookmark(ctx, args[0])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed bookmarks for %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func exportCmd() *cobra.Command {
	var format, out, search string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tracked chats as JSON, YAML or Markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.NewExporter(format)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				chats, err := a.chats(ctx, search)
				if err != nil {
					return err
				}
				if out == "" {
					return exp.Export(chats, cmd.OutOrStdout())
				}
				if filepath.Ext(out) == "" {
					out += "." + exp.Extension()
				}
				if err := writeFile(out, func(w io.Writer) error { return exp.Export(chats, w) }); err != nil {
					return err
				}
				logger.Info("chats exported", "file", out, "chats", len(chats), "format", format)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json, yaml or md")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only chats whose title or site contains this text")
	return cmd
}

// writeFile writes through a temporary file renamed into place on success.
func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chatmark-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
