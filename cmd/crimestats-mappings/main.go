// Command crimestats-mappings validates, imports and prints the versioned
// name-mapping sets used to canonicalize district and crime category labels.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"crimestats/internal/config"
	"crimestats/internal/core"
	"crimestats/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	envFile  string
	check    string
	importF  string
	export   string
	list     bool
	defaults bool
	driver   string
	sqlite   string
	dsn      string
}

func cli(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("crimestats-mappings", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.envFile, "env", config.DefaultEnvFile, "dotenv file to load when present")
	fs.StringVar(&opts.check, "check", "", "validate a mapping set JSON file")
	fs.StringVar(&opts.importF, "import", "", "save a mapping set JSON file as a new version in the store")
	fs.StringVar(&opts.export, "export", "", "print a stored version as JSON (\"latest\" for the newest)")
	fs.BoolVar(&opts.list, "list", false, "list stored versions")
	fs.BoolVar(&opts.defaults, "defaults", false, "print the builtin mapping set as JSON")
	fs.StringVar(&opts.driver, "driver", "", "mapping store: memory|sqlite|postgres (overrides CRIMESTATS_MAPPINGS_DRIVER)")
	fs.StringVar(&opts.sqlite, "sqlite", "", "sqlite file (overrides CRIMESTATS_SQLITE_PATH)")
	fs.StringVar(&opts.dsn, "dsn", "", "postgres DSN (overrides CRIMESTATS_POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(context.Background(), opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Mapping command failed: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	switch {
	case opts.defaults:
		return writeSet(stdout, core.DefaultMappings())
	case opts.check != "":
		set, err := readSet(opts.check)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "Mapping set %s is valid: %d districts, %d categories, %d corrections.\n",
			set.Version, len(set.Districts), len(set.Categories), len(set.Corrections))
		return err
	case opts.importF != "" || opts.export != "" || opts.list:
		return withStore(ctx, opts, func(store core.MappingStore) error {
			switch {
			case opts.importF != "":
				set, err := readSet(opts.importF)
				if err != nil {
					return err
				}
				if err := store.SaveMappings(ctx, set); err != nil {
					return fmt.Errorf("save %s: %w", set.Version, err)
				}
				_, err = fmt.Fprintf(stdout, "Saved mapping set %s.\n", set.Version)
				return err
			case opts.export != "":
				version := opts.export
				if version == "latest" {
					version = ""
				}
				set, err := store.LoadMappings(ctx, version)
				if err != nil {
					return err
				}
				return writeSet(stdout, set)
			default:
				versions, err := store.MappingVersions(ctx)
				if err != nil {
					return err
				}
				for _, v := range versions {
					if _, err := fmt.Fprintln(stdout, v); err != nil {
						return err
					}
				}
				return nil
			}
		})
	default:
		return errors.New("one of -check, -import, -export, -list or -defaults is required")
	}
}

func withStore(ctx context.Context, opts options, fn func(core.MappingStore) error) (err error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	mc := cfg.Mappings
	if opts.driver != "" {
		mc.Driver = core.MappingDriver(strings.ToLower(opts.driver))
	}
	if opts.sqlite != "" {
		mc.SQLitePath = opts.sqlite
	}
	if opts.dsn != "" {
		mc.PostgresDSN = opts.dsn
	}
	store, err := core.OpenMappingStore(ctx, mc)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(store)
}

// validatePath rejects empty paths and parent directory references.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := filepath.Clean(p)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", p)
		}
	}
	return clean, nil
}

func readSet(path string) (set domain.MappingSet, err error) {
	safePath, err := validatePath(path)
	if err != nil {
		return domain.MappingSet{}, err
	}
	f, err := os.Open(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return domain.MappingSet{}, fmt.Errorf("read mapping set: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close mapping set: %w", cerr)
		}
	}()
	return domain.DecodeMappingSet(f)
}

func writeSet(w io.Writer, set domain.MappingSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}
