package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alerticorn/internal/metadata"
	"alerticorn/internal/render"
)

func (c *cli) renderCmd() *cobra.Command {
	var f messageFlags
	cmd := &cobra.Command{
		Use:   "render [text...]",
		Short: "Print the webhook payload without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			body, err := f.builder()
			if err != nil {
				return err
			}
			platform := strings.TrimSpace(f.platform)
			if platform == "" {
				return fmt.Errorf("--platform is required")
			}
			title := f.title
			if strings.TrimSpace(title) == "" {
				title = metadata.DefaultTitle
			}
			p, notes, err := render.NewDefaultRegistry().Render(platform, body(title, text))
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Fprintln(cmd.ErrOrStderr(), "note:", n)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, p.Body, "", "  "); err != nil {
				out.Reset()
				out.Write(p.Body)
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}
	f.bind(cmd)
	return cmd
}
