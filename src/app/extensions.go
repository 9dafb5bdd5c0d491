package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/plugin"
	"github.com/stoq/stoqserver/src/worker"
)

// VerifyWorker is the worker that checks one bundle archive
const VerifyWorker = "verify-extension"

func init() {
	worker.Register(VerifyWorker, verifyExtension)
}

// verifyExtension hashes and reads back one archive, printing
// "<digest> <members>" on success.
func verifyExtension(ctx context.Context, env environ.Env, args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s PATH\n", VerifyWorker)
		return 2
	}
	p := args[0]

	if sp, ok := worker.SearchPathFromEnv(env); ok && !sp.Contains(p) {
		fmt.Fprintf(os.Stderr, "%s is not on the search path\n", p)
		return 1
	}

	h := &plugin.Handle{Name: filepath.Base(p), Origin: filepath.Dir(p), Path: p}
	digest, err := h.Digest()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	members, err := plugin.VerifyBundle(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s %d\n", digest, members)
	return 0
}

// verifyResult is the outcome of one verify child
type verifyResult struct {
	Path    string
	Digest  string
	Members int
	Err     error
}

func parseVerifyOutput(out string) (string, int, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 || len(fields[0]) != 64 {
		return "", 0, fmt.Errorf("unexpected worker output %q", strings.TrimSpace(out))
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, fmt.Errorf("unexpected worker output %q", strings.TrimSpace(out))
	}
	return fields[0], n, nil
}

// verifyAll runs one child per archive through backend and returns the
// results in input order.
func verifyAll(ctx context.Context, launcher worker.Launcher, backend concurrency.Backend, archives []string) []verifyResult {
	results := make([]verifyResult, len(archives))
	var mu sync.Mutex

	for i, p := range archives {
		results[i].Path = p
		err := backend.Go(ctx, func(ctx context.Context) {
			r := runVerify(ctx, launcher, p)
			mu.Lock()
			results[i] = r
			mu.Unlock()
		})
		if err != nil {
			results[i].Err = err
		}
	}
	backend.Wait()
	return results
}

func runVerify(ctx context.Context, launcher worker.Launcher, p string) verifyResult {
	res := verifyResult{Path: p}

	cmd, err := launcher.Command(ctx, VerifyWorker, p)
	if err != nil {
		res.Err = err
		return res
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.New(msg)
		}
		res.Err = err
		return res
	}
	res.Digest, res.Members, res.Err = parseVerifyOutput(stdout.String())
	return res
}

func (a *App) newExtensionsCmd(bc bootstrap.Context, styled func() bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extensions",
		Aliases: []string{"ext"},
		Short:   "Inspect the extension search path",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer{w: cmd.OutOrStdout(), styled: styled()}

			p.title("search path")
			entries := bc.SearchPath.Entries()
			if len(entries) == 0 {
				p.path("", "(empty)")
			}
			for i, e := range entries {
				p.path(fmt.Sprintf("%2d. ", i+1), e)
			}

			p.title("archives")
			p.field("bundles", joinOrNone(bc.Bundles))
			p.field("extensions", joinOrNone(bc.Extensions))
			archives := bc.Loader != nil && bc.Loader.ArchiveSupport()
			p.field("archive loader", p.status(archives, strconv.FormatBool(archives)))
			return nil
		},
	}

	cmd.AddCommand(a.newExtensionsResolveCmd(bc, styled), a.newExtensionsVerifyCmd(bc, styled))
	return cmd
}

func (a *App) newExtensionsResolveCmd(bc bootstrap.Context, styled func() bool) *cobra.Command {
	var extract bool

	cmd := &cobra.Command{
		Use:   "resolve NAME",
		Short: "Show which search path entry provides an extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := bc.Loader
			if loader == nil {
				loader = plugin.NewLoader()
			}
			h, err := loader.Resolve(bc.SearchPath, args[0])
			if errors.Is(err, plugin.ErrNotFound) {
				return fail(3, "%s: not found on the search path", args[0])
			}
			if err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout(), styled: styled()}
			p.title(h.Name)
			p.field("origin", h.Origin)
			p.field("path", h.Path)
			if h.Archived() {
				p.field("member", h.Member)
			}
			if digest, err := h.Digest(); err == nil {
				p.field("blake3", digest)
			} else if !errors.Is(err, plugin.ErrNotFile) {
				return err
			}

			if extract {
				target, err := h.Materialize(bc.CacheDir)
				if err != nil {
					return fmt.Errorf("extract %s: %w", h.Name, err)
				}
				p.field("extracted", target)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&extract, "extract", false, "extract archived members into the cache directory")
	return cmd
}

// verifyBackend runs children one at a time unless parallel asks for more
func verifyBackend(parallel int) concurrency.Backend {
	if parallel <= 1 {
		return concurrency.New(concurrency.Substrate{}, 1)
	}
	return concurrency.New(concurrency.Substrate{Backend: concurrency.Cooperative}, parallel)
}

func (a *App) newExtensionsVerifyCmd(bc bootstrap.Context, styled func() bool) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every registered archive in a worker process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
			}
			archives := append(append([]string(nil), bc.Bundles...), bc.Extensions...)
			p := printer{w: cmd.OutOrStdout(), styled: styled()}
			if len(archives) == 0 {
				fmt.Fprintln(p.w, "no archives registered")
				return nil
			}

			results := verifyAll(cmd.Context(), bc.Workers, verifyBackend(parallel), archives)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(p.w, "%s %s: %v\n", p.status(false, "FAIL"), r.Path, r.Err)
					continue
				}
				fmt.Fprintf(p.w, "%s %s (%d files, blake3 %s)\n", p.status(true, "ok"), r.Path, r.Members, r.Digest[:16])
			}
			if failed > 0 {
				return fail(1, "%d of %d archives failed verification", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 1, "number of archives verified at once")
	return cmd
}
