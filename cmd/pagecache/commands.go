/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/suparena/pagecache"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/models"
	"github.com/suparena/pagecache/paging"
	"github.com/suparena/pagecache/repository"
)

const defaultView = "cli"

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace the cache with the first remote page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := c.engine.View(defaultView)
			if err != nil {
				return err
			}
			if err := view.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d records loaded\n", view.Len())
			return nil
		},
	}
}

func (c *cli) browseCmd() *cobra.Command {
	var (
		limit int
		tags  []string
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through the collection, fetching remote pages as needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.NewValidationError("limit", "must be positive")
			}
			view, err := c.engine.View(defaultView)
			if err != nil {
				return err
			}

			records := make([]models.Record, 0, limit)
			for r, err := range view.All(cmd.Context()) {
				if err != nil {
					return err
				}
				records = append(records, r)
				if len(records) == limit {
					break
				}
			}
			return c.printRecords(cmd.OutOrStdout(), paging.FilterTags(records, tags))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to read")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "only show records with any of these tags")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached records without contacting the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offset < 0 {
				return errors.NewValidationError("offset", "must not be negative")
			}
			records, err := c.engine.Store().Window(cmd.Context(), offset, limit)
			if err != nil {
				return errors.NewStoreError("window", err)
			}
			return c.printRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "position of the first record")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Look up a record by identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return errors.NewValidationError("id", fmt.Sprintf("%q is not a positive integer", args[0]))
			}
			r, err := c.engine.Repository().LookupByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printRecords(cmd.OutOrStdout(), []models.Record{*r})
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search records by name or identity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			records, err := c.engine.Repository().Search(cmd.Context(), text, repository.WithTags(tags...))
			if err != nil {
				return err
			}
			if len(records) == 0 && c.output == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "no records match %q\n", text)
				return nil
			}
			return c.printRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "only show records with any of these tags")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.engine.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if c.output == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "driver:  %s\nrecords: %d\n", stats.Driver, stats.Records)
				return nil
			}
			return c.encode(cmd.OutOrStdout(), stats)
		},
	}
}

func versionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := pagecache.GetVersionInfo()
			if c.output != "text" {
				return c.encode(cmd.OutOrStdout(), info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pagecache version %s\n", info.Version)
			fmt.Fprintf(out, "Git commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "Build date: %s\n", info.BuildDate)
			fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
			return nil
		},
	}
}

func (c *cli) printRecords(w io.Writer, records []models.Record) error {
	if c.output != "text" {
		return c.encode(w, records)
	}
	for _, r := range records {
		fmt.Fprintf(w, "%4d  %-16s %-18s %.1fm %.1fkg\n",
			r.ID, r.Name, strings.Join(r.Tags, ","), r.HeightMeters(), r.WeightKg())
	}
	return nil
}

func (c *cli) encode(w io.Writer, v any) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return errors.NewValidationError("output", fmt.Sprintf("unknown format %q", c.output))
	}
}
