// Command rattler-fetch is a thin CLI wrapper around pkg/repodata, useful
// for manually inspecting or warming the cache for a single subdirectory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cisaacstern/rattler/pkg/config"
	"github.com/cisaacstern/rattler/pkg/logging"
	"github.com/cisaacstern/rattler/pkg/repodata"
)

var rootCommand = &cobra.Command{
	Use:   "rattler-fetch",
	Short: "Fetch and cache package-repository subdirectory indexes",
}

var fetchConfiguration struct {
	cacheDir    string
	cacheAction string
	logLevel    string
}

var fetchCommand = &cobra.Command{
	Use:   "fetch <subdirectory-url>",
	Short: "Fetch a single subdirectory index, using and refreshing the local cache",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchMain,
}

// registerFetchFlags binds the fetch command's flags onto flags.
func registerFetchFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringVar(&fetchConfiguration.cacheDir, "cache-dir", defaultCacheDir(), "cache directory root")
	flags.StringVar(&fetchConfiguration.cacheAction, "cache-action", "cache-or-fetch",
		"one of: cache-or-fetch, use-cache-only, force-cache-only, no-cache")
	flags.StringVar(&fetchConfiguration.logLevel, "log-level", "info",
		"one of: disabled, error, warn, info, debug, trace")
}

func init() {
	registerFetchFlags(fetchCommand.Flags())
	rootCommand.AddCommand(fetchCommand)
}

// defaultCacheDir reads RATTLER_CACHE_DIR as a convenience default, falling
// back to the current directory when unset.
func defaultCacheDir() string {
	if dir := os.Getenv("RATTLER_CACHE_DIR"); dir != "" {
		return dir
	}
	return "."
}

func parseCacheAction(value string) (repodata.CacheAction, error) {
	switch value {
	case "cache-or-fetch":
		return repodata.CacheOrFetch, nil
	case "use-cache-only":
		return repodata.UseCacheOnly, nil
	case "force-cache-only":
		return repodata.ForceCacheOnly, nil
	case "no-cache":
		return repodata.NoCache, nil
	default:
		return 0, fmt.Errorf("unknown cache action %q", value)
	}
}

func fetchMain(command *cobra.Command, arguments []string) error {
	action, err := parseCacheAction(fetchConfiguration.cacheAction)
	if err != nil {
		return err
	}

	level, ok := logging.NameToLevel(fetchConfiguration.logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", fetchConfiguration.logLevel)
	}
	logging.DebugEnabled = level >= logging.LevelDebug

	logger := logging.RootLogger.Sublogger("fetch")
	cfg := config.NewDefault(fetchConfiguration.cacheDir)
	engine := repodata.NewEngine(cfg.NewHTTPClient(), logger)

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))

	options := repodata.FetchOptions{CacheAction: action}
	if isTTY {
		options.Progress = func(bytes uint64, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\rfetching... %s / %s", humanize.Bytes(bytes), humanize.Bytes(uint64(total)))
			} else {
				fmt.Fprintf(os.Stderr, "\rfetching... %s", humanize.Bytes(bytes))
			}
		}
	}

	data, err := engine.Fetch(context.Background(), arguments[0], fetchConfiguration.cacheDir, options)
	if isTTY {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	defer data.Lock.Release()

	fmt.Printf("%s (%s)\n", data.IndexPath, cacheResultString(data.CacheResult))
	return nil
}

func cacheResultString(result repodata.CacheResult) string {
	switch result {
	case repodata.CacheHit:
		return "cache hit"
	case repodata.CacheHitAfterFetch:
		return "cache hit after revalidation"
	case repodata.CacheOutdated:
		return "refreshed"
	case repodata.CacheNotPresent:
		return "downloaded"
	default:
		return "unknown"
	}
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
