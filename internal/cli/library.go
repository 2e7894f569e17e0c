package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shelf-cli/internal/app"
	"shelf-cli/internal/library"
	"shelf-cli/internal/model"

	"github.com/spf13/cobra"
)

func newLibraryCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "List, inspect and open library documents",
	}
	cmd.AddCommand(newLibraryListCmd(a))
	cmd.AddCommand(newLibraryThumbnailsCmd(a))
	cmd.AddCommand(newLibraryURLCmd(a))
	cmd.AddCommand(newLibraryOpenCmd(a))
	cmd.AddCommand(newLibraryInfoCmd(a))
	return cmd
}

// signedIn opens a controller and refuses to continue without a session.
func signedIn(cmd *cobra.Command, a *App) (*app.Controller, func(), error) {
	c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{})
	if err != nil {
		return nil, nil, err
	}
	if !c.Session.Authenticated() {
		done()
		return nil, nil, errNotSignedIn
	}
	return c, done, nil
}

func newLibraryListCmd(a *App) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List document names in server order",
		Example: strings.TrimSpace(`
shelf library list
shelf library list --search report --format text
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := signedIn(cmd, a)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			names := c.Library.LoadDocumentList(cmd.Context())
			if err := c.Library.LastError(); err != nil {
				return writeErr(cmd, describe("list documents", "", err))
			}
			return writeData(cmd, a, library.Filter(names, search))
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive substring filter")
	return cmd
}

type thumbnailRow struct {
	Name        string `json:"name"`
	Available   bool   `json:"available"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
}

type thumbnailRows []thumbnailRow

func (rows thumbnailRows) Text() string {
	var b strings.Builder
	for _, r := range rows {
		switch {
		case !r.Available:
			fmt.Fprintf(&b, "%s\t(no preview)\n", r.Name)
		case r.Path != "":
			fmt.Fprintf(&b, "%s\t%s\n", r.Name, r.Path)
		default:
			fmt.Fprintf(&b, "%s\t%s %d bytes\n", r.Name, r.ContentType, r.Size)
		}
	}
	return b.String()
}

func newLibraryThumbnailsCmd(a *App) *cobra.Command {
	var out string
	var search string

	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Fetch every thumbnail (optionally saving them to a directory)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := signedIn(cmd, a)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			c.Library.Load(cmd.Context())
			if err := c.Library.LastError(); err != nil {
				return writeErr(cmd, describe("list documents", "", err))
			}

			out = strings.TrimSpace(out)
			if out != "" {
				if err := os.MkdirAll(out, 0o755); err != nil {
					return writeErr(cmd, err)
				}
			}

			rows := thumbnailRows{}
			used := map[string]bool{}
			for _, name := range c.Library.Filter(search) {
				row := thumbnailRow{Name: name}
				if h, ok := c.Library.Thumbnail(name); ok {
					row.Available = true
					row.ContentType = h.ContentType
					row.Size = h.Size
					if out != "" {
						data, _, _ := c.Blobs.Open(h.ID)
						path := filepath.Join(out, thumbnailFileName(name, h.ContentType, used))
						if err := os.WriteFile(path, data, 0o644); err != nil {
							return writeErr(cmd, err)
						}
						row.Path = path
					}
				}
				rows = append(rows, row)
			}
			return writeData(cmd, a, rows)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Directory to write thumbnails into")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive substring filter")
	return cmd
}

// thumbnailFileName keeps the document's full base name so "x.pdf" and
// "x.PDF" map to different files. used tracks names taken in this run,
// compared case-insensitively.
func thumbnailFileName(name, contentType string, used map[string]bool) string {
	base := filepath.Base(name)
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		base = "thumbnail"
	}
	ext := ".img"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	file := base + ext
	for i := 2; used[strings.ToLower(file)]; i++ {
		file = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	used[strings.ToLower(file)] = true
	return file
}

func newLibraryURLCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "url NAME",
		Short: "Print the direct URL of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			return writeData(cmd, a, c.Viewer.URL(args[0]))
		},
	}
}

type openedDocument struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (o openedDocument) Text() string { return o.Path }

func newLibraryOpenCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open NAME",
		Short: "Download a document and open it in the system viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := signedIn(cmd, a)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			name := args[0]
			path, err := c.Viewer.Open(cmd.Context(), name)
			if err != nil {
				return writeErr(cmd, describe("open", name, err))
			}
			return writeData(cmd, a, openedDocument{Name: name, Path: path})
		},
	}
}

type documentInfo model.DocumentInfo

func (d documentInfo) Text() string {
	lines := []string{
		"name\t" + d.Name,
		"url\t" + d.URL,
		"type\t" + d.ContentType,
		fmt.Sprintf("size\t%d", d.Size),
		fmt.Sprintf("pages\t%d", d.Pages),
	}
	return strings.Join(lines, "\n")
}

func newLibraryInfoCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show a document's size and page count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := signedIn(cmd, a)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			name := args[0]
			info, err := c.Viewer.Info(cmd.Context(), name)
			if err != nil {
				return writeErr(cmd, describe("info", name, err))
			}
			return writeData(cmd, a, documentInfo(info))
		},
	}
}
