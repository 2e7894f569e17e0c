package cli

import (
	"fmt"
	"os"
	"strings"

	"shelf-cli/internal/docs"
	"shelf-cli/internal/tui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type guideTopics struct {
	Topics []string `json:"topics"`
}

func (g guideTopics) Text() string { return strings.Join(g.Topics, "\n") + "\n" }

type guidePage struct {
	Topic    string `json:"topic"`
	Markdown string `json:"markdown"`
}

func newGuideCmd(a *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:     "guide [topic]",
		Aliases: []string{"docs"},
		Short:   "Show the built-in guides",
		Example: strings.TrimSpace(`
shelf guide
shelf guide configuration --format text
shelf guide keys --raw
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return writeData(cmd, a, guideTopics{Topics: docs.Topics()})
			}

			topic := args[0]
			body, ok := docs.Get(topic)
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown guide topic: %q (run `shelf guide` to list topics)", topic))
			}

			switch {
			case raw:
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			case strings.EqualFold(a.Format, "text"):
				_, err := fmt.Fprint(cmd.OutOrStdout(), tui.RenderMarkdown(body, guideWidth()))
				return err
			default:
				return writeData(cmd, a, guidePage{Topic: strings.ToLower(topic), Markdown: body})
			}
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw markdown (no JSON envelope)")
	return cmd
}

func guideWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return min(w, 100)
	}
	return 80
}
