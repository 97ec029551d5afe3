package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"alerticorn/internal/channel"
)

type channelRow struct {
	Platform string `json:"platform"`
	Channel  string `json:"channel"`
	Env      string `json:"env"`
	Endpoint string `json:"endpoint"`
}

func (c *cli) channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List channels configured in the environment",
		Long:  "Lists AC_<PLATFORM>_CHANNEL_<NAME> variables. Webhook paths are masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := channel.NewResolver()
			entries := res.Channels()
			rows := make([]channelRow, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, channelRow{Platform: e.Platform, Channel: e.Channel, Env: e.EnvName, Endpoint: channel.Redact(e.URL)})
			}
			if c.v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Platform", "Channel", "Env", "Endpoint"})
			for _, r := range rows {
				tw.AppendRow(table.Row{r.Platform, r.Channel, r.Env, r.Endpoint})
			}
			if p, ok := res.Lookup(channel.KeyDefaultPlatform); ok {
				ch, _ := res.Lookup(channel.KeyDefaultChannel)
				tw.AppendFooter(table.Row{p, ch, "AC_DEFAULT_*", ""})
			}
			tw.Render()
			return nil
		},
	}
}
