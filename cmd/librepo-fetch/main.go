// Command librepo-fetch is a command-line front end for the librepo
// fetch engine: it loads a Handle from a TOML config file, runs the
// metadata/package-fetch flows, and reports progress to the terminal.
// Shaped after the teacher's cmd/mirrorctl: a cobra root command with
// config-path/log-level persistent flags and one subcommand per major
// operation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/go-librepo/librepo/internal/config"
	"github.com/go-librepo/librepo/internal/metadata"
	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/pgp"
)

var (
	version = "dev"
	commit  = "unknown"

	configPath string
	logLevel   string
)

var (
	errorColor = color.New(color.FgRed).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	okColor    = color.New(color.FgHiGreen).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "librepo-fetch",
	Short: "Fetch RPM-style package repository content over a mirror pool",
	Long: `librepo-fetch mirrors a package repository's metadata and packages
from a pool of HTTP(S)/FTP/file mirrors, with checksum verification,
detached OpenPGP signature checks, and resumable transfers.

Find more information in the project's README.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch repository metadata (and, with --packages, package files)",
	Long: `Runs the repomd.xml orchestration flow: discover mirrors, fetch
repomd.xml, optionally verify its signature, and download the data
files it references.

Usage:
  librepo-fetch fetch --config /path/to/repo.toml
  librepo-fetch fetch --config /path/to/repo.toml --log-level debug`,
	RunE: runFetch,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long:  "Validate a configuration file and report any issues without fetching anything.",
	RunE:  runValidate,
}

var fastestMirrorCmd = &cobra.Command{
	Use:   "fastest-mirror [url...]",
	Short: "Probe a set of mirror URLs and print them ordered fastest-first",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFastestMirror,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the OpenPGP keyring used for signature verification",
}

var keysImportCmd = &cobra.Command{
	Use:   "import <key-file> [key-file...]",
	Short: "Import one or more OpenPGP public keys into the keyring",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKeysImport,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys in the keyring",
	RunE:  runKeysList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("librepo-fetch %s (commit %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path (required)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")

	keysCmd.PersistentFlags().String("key-home", "", "keyring directory (defaults to destination_dir/.gnupg)")
	keysImportCmd.Flags().String("backend", "", "signature backend to import into (agent, raw); defaults to the config's signature_backend")
	keysListCmd.Flags().Bool("export", false, "include each key's exported bytes in the listing")
	keysListCmd.Flags().String("backend", "", "signature backend to list (agent, raw); defaults to the config's signature_backend")

	fastestMirrorCmd.Flags().String("cache", "", "fastest-mirror probe result cache path")

	rootCmd.AddCommand(fetchCmd, validateCmd, fastestMirrorCmd, keysCmd, versionCmd)
	keysCmd.AddCommand(keysImportCmd, keysListCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
		os.Exit(1)
	}
}

func loadHandle() (*config.Handle, error) {
	if configPath == "" {
		return nil, errors.New("--config is required")
	}
	h, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}
	if logLevel != "" {
		h.Log.Level = logLevel
	}
	if err := h.Log.Apply(); err != nil {
		return nil, errors.Wrap(err, "applying log configuration")
	}
	return h, nil
}

// interruptContext derives a context that is canceled on SIGINT,
// mirroring the scheduler's own process-wide interrupt handling but at
// the CLI's outer process-lifetime scope.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

// progressBars drives one cheggaaa/pb bar per concurrently-fetched file,
// pooled together so their redraws don't stomp on each other (the same
// pb.StartPool usage the huggingface-go example uses for its per-file
// download bars).
type progressBars struct {
	mu   sync.Mutex
	pool *pb.Pool
	bars map[string]*pb.ProgressBar
}

func newProgressBars() *progressBars {
	pool, _ := pb.StartPool()
	return &progressBars{pool: pool, bars: make(map[string]*pb.ProgressBar)}
}

func (p *progressBars) update(dest string, downloaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bar, ok := p.bars[dest]
	if !ok {
		bar = pb.New64(total).Set(pb.Bytes, true).
			SetTemplateString(fmt.Sprintf(`{{ "%s:" }} {{ bar . }} {{percent . }} {{speed . "%%s/s"}}`, filepath.Base(dest)))
		p.pool.Add(bar)
		p.bars[dest] = bar
	}
	bar.SetCurrent(downloaded)
}

func (p *progressBars) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bar := range p.bars {
		bar.Finish()
	}
	_ = p.pool.Stop()
}

func runFetch(_ *cobra.Command, _ []string) error {
	h, err := loadHandle()
	if err != nil {
		return err
	}
	if err := h.Check(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	ctx, cancel := interruptContext()
	defer cancel()

	flow := &metadata.Flow{Handle: h, KeyHome: keyHomeFor(h)}
	if h.Checks.Has(config.VerifySignature) {
		flow.Verifier = verifierFor(h)
	}

	showBar := h.Log.ShouldShowProgress() && isatty.IsTerminal(os.Stdout.Fd())
	var bars *progressBars
	if showBar {
		bars = newProgressBars()
		flow.OnProgress = bars.update
	} else {
		fmt.Println("fetching repository metadata...")
	}

	res, err := flow.Run(ctx)
	if bars != nil {
		bars.finish()
	}
	if err != nil {
		return errors.Wrap(err, "fetch failed")
	}

	fmt.Printf("%s repository metadata fetched: %d data file(s) (%s)\n",
		okColor("done:"), len(res.DataTargets), h.DestinationDir)
	return nil
}

func runValidate(_ *cobra.Command, _ []string) error {
	if configPath == "" {
		return errors.New("--config is required")
	}
	h, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}
	if err := h.Check(); err != nil {
		fmt.Printf("%s %v\n", warnColor("invalid:"), err)
		os.Exit(1)
	}
	fmt.Println(okColor("configuration is valid"))
	return nil
}

func runFastestMirror(cmd *cobra.Command, args []string) error {
	cachePath, _ := cmd.Flags().GetString("cache")
	prober := mirror.NewProber(nil, cachePath)

	results, err := prober.Probe(cmd.Context(), args)
	if err != nil {
		return errors.Wrap(err, "probing mirrors")
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Err != nil != (results[j].Err != nil) {
			return results[i].Err == nil
		}
		return results[i].Latency < results[j].Latency
	})
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %s %s (%v)\n", warnColor("unreachable:"), r.URL, r.Err)
			continue
		}
		fmt.Printf("  %-8s %s\n", r.Latency, r.URL)
	}
	return nil
}

func runKeysImport(cmd *cobra.Command, args []string) error {
	h, err := loadHandle()
	if err != nil {
		return err
	}
	backend, _ := cmd.Flags().GetString("backend")
	verifier := verifierForBackend(h, backend)
	keyHome, _ := cmd.Flags().GetString("key-home")
	if keyHome == "" {
		keyHome = keyHomeFor(h)
	}

	for _, path := range args {
		if err := verifier.ImportKey(path, keyHome); err != nil {
			return errors.Wrapf(err, "importing key %s", path)
		}
		fmt.Printf("%s %s\n", okColor("imported:"), path)
	}
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	h, err := loadHandle()
	if err != nil {
		return err
	}
	backend, _ := cmd.Flags().GetString("backend")
	export, _ := cmd.Flags().GetBool("export")
	verifier := verifierForBackend(h, backend)
	keyHome, _ := cmd.Flags().GetString("key-home")
	if keyHome == "" {
		keyHome = keyHomeFor(h)
	}

	keys, err := verifier.ListKeys(keyHome, export)
	if err != nil {
		return errors.Wrap(err, "listing keys")
	}
	if len(keys) == 0 {
		fmt.Println("no keys found")
		return nil
	}
	for _, k := range keys {
		fmt.Printf("  %s  %v\n", k.KeyID, k.UserIDs)
	}
	return nil
}

func verifierFor(h *config.Handle) pgp.Verifier {
	return verifierForBackend(h, string(h.SignatureBackend))
}

func verifierForBackend(h *config.Handle, backend string) pgp.Verifier {
	if backend == "" {
		backend = string(h.SignatureBackend)
	}
	if config.SignatureBackend(backend) == config.BackendRaw {
		return pgp.NewRawVerifier()
	}
	return pgp.NewAgentVerifier()
}

func keyHomeFor(h *config.Handle) string {
	return h.DestinationDir + "/.gnupg"
}
