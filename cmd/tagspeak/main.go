// Command tagspeak runs, checks, and documents .tgsk scripts.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	tagspeak "github.com/Mordraga/tagspeak"
)

func main() {
	root := &cobra.Command{
		Use:           "tagspeak",
		Short:         "TagSpeak interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetHelpCommand(helpCmd())
	root.AddCommand(
		runCmd(),
		buildCmd(),
		lintCmd(),
		initCmd(),
		replCmd(),
	)

	// `tagspeak file.tgsk` is shorthand for `tagspeak run file.tgsk`
	if len(os.Args) > 1 && strings.HasSuffix(os.Args[1], ".tgsk") {
		os.Args = append([]string{os.Args[0], "run"}, os.Args[1:]...)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, tagspeak.RenderError(err))
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file.tgsk>",
		Short: "Execute a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rt := tagspeak.NewRuntime(args[0])
			_, err = tagspeak.RunProgram(rt, string(src))
			return err
		},
	}
}

func buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <file.tgsk>",
		Short: "Parse a script without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".tgsk") {
				return fmt.Errorf("build expects a .tgsk file")
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := tagspeak.Parse(string(src)); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			rt := tagspeak.NewRuntime(path)
			pretty := abs
			if rt.Box.Root != "" {
				pretty = rt.Box.RootRelative(abs)
			}
			fmt.Printf("build_ok %s\n", pretty)
			return nil
		},
	}
}

func helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "help [packet]",
		Short: "Print the packet reference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := ""
			if len(args) > 0 {
				topic = args[0]
			}
			fmt.Println(tagspeak.HelpText(topic))
			return nil
		},
	}
}

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file.tgsk>",
		Short: "Run lint heuristics over a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			warnings := tagspeak.LintSource(string(src))
			if len(warnings) == 0 {
				fmt.Println("Lint clean: no warnings detected.")
				return nil
			}
			fmt.Println("Lint findings:")
			for _, w := range warnings {
				fmt.Println("- " + w)
			}
			os.Exit(1)
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a red.tgsk sentinel marking the project root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(dir, tagspeak.Sentinel)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("%s already exists at %s\n", tagspeak.Sentinel, path)
				return nil
			}
			banner := "# TagSpeak project root\n" +
				"# This file marks the sandbox boundary for file access and execution.\n" +
				"# Keep it checked into version control.\n"
			if err := os.WriteFile(path, []byte(banner), 0o644); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", path)
			return nil
		},
	}
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session rooted at the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := tagspeak.NewRuntime(filepath.Join(".", "repl.tgsk"))
			rt.EnableRed()
			return rt.Repl()
		},
	}
}
