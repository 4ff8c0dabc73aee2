package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/italolelis/resumable_downloader/internal/transfer"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files published on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := a.client.List(cmd.Context())
			if err != nil {
				return err
			}

			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no files")

				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED\tSHA256")

			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					f.Name,
					humanize.IBytes(uint64(f.SizeBytes)),
					humanize.Time(f.CreatedAt),
					f.ContentHash)
			}

			return tw.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show the metadata of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.fetcher.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printFile(cmd, f)

			return nil
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var size string

	cmd := &cobra.Command{
		Use:   "generate [name]",
		Short: "Ask the server to generate a pseudorandom file",
		Long: `Ask the server to generate a pseudorandom file. Without a name the server
picks one. Generating a name that already exists returns the existing file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req transfer.GenerateRequest

			if len(args) == 1 {
				req.Name = args[0]
			}

			if size != "" {
				n, err := humanize.ParseBytes(size)
				if err != nil {
					return fmt.Errorf("invalid --size %q: %w", size, err)
				}

				sizeBytes := int64(n)
				req.SizeBytes = &sizeBytes
			}

			res, err := a.client.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			printFile(cmd, &res.File)

			return nil
		},
	}

	cmd.Flags().StringVar(&size, "size", "", "file size, e.g. 5MiB or 1048576 (default: server default)")

	return cmd
}

func printFile(cmd *cobra.Command, f *transfer.File) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s\n", f.Name)
	fmt.Fprintf(tw, "size:\t%s (%d bytes)\n", humanize.IBytes(uint64(f.SizeBytes)), f.SizeBytes)
	fmt.Fprintf(tw, "sha256:\t%s\n", f.ContentHash)
	fmt.Fprintf(tw, "created:\t%s\n", f.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	_ = tw.Flush()
}
