// Package main provides a CLI tool for working with iris-triage rule
// documents.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"iris-triage/internal/rules"
)

var version = "dev"

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	muted     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	severityStyles = map[int]lipgloss.Style{
		1: muted,
		2: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		3: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		4: lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")).Bold(true),
		5: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
	}
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidateCmd(os.Args[2:])
	case "list":
		runListCmd(os.Args[2:])
	case "seed":
		runSeedCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("iris-rules %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: iris-rules <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  validate  Validate rule documents or directories\n")
	fmt.Fprintf(os.Stderr, "  list      List rules found in a rule directory\n")
	fmt.Fprintf(os.Stderr, "  seed      Write the starter rule set into an empty directory\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version  Show version and exit\n")
}

func runValidateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show detailed rule information")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one path is required\n")
		fmt.Fprintf(os.Stderr, "Usage: iris-rules validate [--verbose] <path> [<path>...]\n")
		os.Exit(1)
	}

	os.Exit(runValidate(paths, *verbose))
}

func runListCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	dir := "rules"
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	os.Exit(runList(dir))
}

func runSeedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	fs.Parse(args)

	dir := "rules"
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	store := rules.NewStore(dir, slog.New(slog.DiscardHandler))
	seeded, err := rules.SeedDefaults(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: seeding %s: %v\n", dir, err)
		os.Exit(1)
	}
	if seeded == 0 {
		fmt.Printf("%s already contains rules, nothing seeded\n", dir)
		return
	}
	fmt.Printf("Seeded %d rule(s) into %s\n", seeded, dir)
}

func runValidate(paths []string, verbose bool) int {
	var totalFiles, validFiles, invalidFiles int

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			invalidFiles++
			continue
		}

		if info.IsDir() {
			files, err := collectRuleFiles(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading directory %s: %v\n", path, err)
				invalidFiles++
				continue
			}
			for _, f := range files {
				totalFiles++
				if validateFile(f, verbose) {
					validFiles++
				} else {
					invalidFiles++
				}
			}
		} else {
			totalFiles++
			if validateFile(path, verbose) {
				validFiles++
			} else {
				invalidFiles++
			}
		}
	}

	fmt.Printf("\nResults: %d files checked, %d valid, %d invalid\n", totalFiles, validFiles, invalidFiles)

	if invalidFiles > 0 {
		return 1
	}
	return 0
}

func validateFile(path string, verbose bool) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("  %s  %s: %v\n", failStyle.Render("FAIL"), path, err)
		return false
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rule, err := rules.FromDocument(name, string(data))
	if err != nil {
		fmt.Printf("  %s  %s: %v\n", failStyle.Render("FAIL"), path, err)
		return false
	}

	fmt.Printf("  %s    %s\n", okStyle.Render("OK"), path)

	if verbose {
		fmt.Printf("        - [%s] %s (severity=%d, enabled=%t)\n",
			rule.ID, rule.Name, rule.Severity, rule.Enabled)
		if rule.Description != "" {
			fmt.Printf("          %s\n", muted.Render(rule.Description))
		}
		if len(rule.Tags) > 0 {
			fmt.Printf("          tags: %s\n", strings.Join(rule.Tags, ", "))
		}
	}

	return true
}

func runList(dir string) int {
	store := rules.NewStore(dir, slog.New(slog.DiscardHandler))
	catalog, warnings := store.LoadAll()
	for _, warning := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", warning)
	}

	listed := catalog.Rules
	sort.Slice(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	for _, rule := range listed {
		sev := severityStyles[rule.Severity].Render(fmt.Sprintf("sev=%d", rule.Severity))
		state := ""
		if !rule.Enabled {
			state = muted.Render("  (disabled)")
		}
		fmt.Printf("%-40s  %s  %s%s\n", rule.Name, sev, strings.Join(rule.Tags, ","), state)
	}

	fmt.Printf("\n%d rule(s) in %s\n", len(listed), dir)
	return 0
}

func collectRuleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), rules.RuleFileExt) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
