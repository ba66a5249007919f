package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fetchplan-registry/internal/app"
	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
)

var errCheckFailed = errors.New("fetch plan check failed")

func newCheckCmd(opts *options) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load every definition file and report errors and duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			session, repo, err := app.LoadRepository(cfg, logger, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			diags, err := repo.Diagnostics()
			printDiagnostics(cmd, diags)

			if err != nil {
				if !diags.HasErrors() {
					fmt.Fprintf(out, "error: %v\n", err)
				}

				return errCheckFailed
			}

			stored := 0

			for _, entity := range session.ClassNames() {
				names, err := repo.Names(entity)
				if err != nil {
					return err
				}

				stored += len(names)
			}

			fmt.Fprintf(out, "%d fetch plans for %d entities, %d warnings\n",
				stored, len(session.ClassNames()), len(diags.Warnings))

			if strict && len(diags.Warnings) > 0 {
				return errCheckFailed
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on warnings")

	return cmd
}

func printDiagnostics(cmd *cobra.Command, diags diagnostic.Diagnostics) {
	out := cmd.OutOrStdout()

	for _, list := range [][]diagnostic.Diagnostic{diags.Errors, diags.Warnings, diags.Infos} {
		for _, d := range list {
			fmt.Fprintf(out, "%s [%s]", d.Severity, d.Code)

			if d.Entity != "" || d.Plan != "" {
				fmt.Fprintf(out, " %s/%s:", d.Entity, d.Plan)
			}

			fmt.Fprintf(out, " %s", d.Message)

			if len(d.Suggestions) > 0 {
				fmt.Fprintf(out, " (did you mean %s?)", strings.Join(d.Suggestions, ", "))
			}

			if d.Source != "" {
				fmt.Fprintf(out, " in %s", d.Source)
			}

			fmt.Fprintln(out)
		}
	}
}

func newShowCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show ENTITY NAME",
		Short: "Print a resolved fetch plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			_, repo, err := app.LoadRepository(cfg, logger, nil)
			if err != nil {
				return err
			}

			plan, err := repo.Get(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			switch strings.ToLower(format) {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)

				if err := enc.Encode(fetchplan.ToTree(plan)); err != nil {
					return err
				}

				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(fetchplan.ToTree(plan))
			case "text":
				_, err := fmt.Fprintln(out, plan)
				return err
			default:
				return fmt.Errorf("unknown output format %q", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format: yaml, json or text")

	return cmd
}

func newNamesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "names ENTITY",
		Short: "List the fetch plans stored for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			_, repo, err := app.LoadRepository(cfg, logger, nil)
			if err != nil {
				return err
			}

			names, err := repo.Names(args[0])
			if err != nil {
				return err
			}

			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}

			return nil
		},
	}
}

func newEntitiesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entities of the metadata model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			session, _, err := app.LoadRepository(cfg, logger, nil)
			if err != nil {
				return err
			}

			for _, cls := range session.Classes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", cls.Name, cls.Store, cls.Table)
			}

			return nil
		},
	}
}
