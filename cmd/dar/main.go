// Command dar drives pkg/archive from the command line: create, extract,
// test, diff, and mount, dispatched the same way cmd/clipctl/main.go
// dispatches its own subcommands (flag.NewFlagSet per verb, switch on
// os.Args[1]) rather than a cobra tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dar-go/dar/internal/clihelp"
	"github.com/dar-go/dar/internal/config"
	"github.com/dar-go/dar/internal/logging"
	"github.com/dar-go/dar/internal/uio"
	"github.com/dar-go/dar/pkg/archive"
	"github.com/dar-go/dar/pkg/archivefs"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/slice"
)

const version = "1.0"

func main() {
	logging.Init(false)
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) == 0 {
		printUsage()
		return 1
	}

	switch argv[0] {
	case "-h", "--help", "help":
		printUsage()
		return 0
	case "-V", "--version", "version":
		clihelp.PrintVersion(os.Stdout, "dar", version)
		return 0
	}

	var err error
	switch argv[0] {
	case "create":
		err = cmdCreate(argv[1:])
	case "extract":
		err = cmdExtract(argv[1:])
	case "test":
		err = cmdTest(argv[1:])
	case "diff":
		err = cmdDiff(argv[1:])
	case "mount":
		err = cmdMount(argv[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", argv[0])
		printUsage()
		return 1
	}
	if err != nil {
		return clihelp.Fail("dar "+argv[0]+" failed", err)
	}
	return 0
}

// openStore routes a destination of the form "s3://bucket/prefix" to
// slice.S3Store and anything else to slice.LocalStore, the way the
// facade's own destination-basename convention (domain-stack wiring)
// picks a backend from the string shape alone.
func openStore(dest string, region, endpoint, accessKey, secretKey string) (slice.Store, error) {
	if strings.HasPrefix(dest, "s3://") {
		rest := strings.TrimPrefix(dest, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		bucket := parts[0]
		prefix := ""
		if len(parts) == 2 {
			prefix = parts[1]
		}
		return slice.NewS3Store(context.Background(), slice.S3Config{
			Bucket:    bucket,
			Prefix:    prefix,
			Region:    region,
			Endpoint:  endpoint,
			AccessKey: accessKey,
			SecretKey: secretKey,
		}, "dar")
	}
	return slice.NewLocalStore(filepath.Dir(dest), filepath.Base(dest), "dar", 3), nil
}

func resolveCompression(name string) (compress.Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "pgzip":
		return compress.PGzip, nil
	case "bzip2":
		return compress.BZip2, nil
	case "lzo":
		return compress.LZO, nil
	case "xz":
		return compress.XZ, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return 0, errs.New(errs.KindFeature, "main.resolveCompression", fmt.Errorf("unknown compression %q", name))
	}
}

func cmdCreate(args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		root        = fset.String("root", "", "source directory to archive (required)")
		dest        = fset.String("out", "", "destination archive basename, or s3://bucket/prefix (required)")
		sliceSize   = fset.Int("slice-size", 0, "physical slice size in bytes (0 = single slice)")
		compression = fset.String("compression", "gzip", "compression algorithm: none|gzip|pgzip|bzip2|lzo|xz|zstd")
		reference   = fset.String("reference", "", "reference archive basename to diff against for an incremental archive")
		confFile    = fset.String("conf", "", "optional response file (dar.conf/.dcf) supplying defaults")
		s3Region    = fset.String("s3-region", "", "S3 region, when -out is s3://...")
		s3Endpoint  = fset.String("s3-endpoint", "", "S3-compatible endpoint override")
		s3Key       = fset.String("s3-access-key", "", "S3 access key")
		s3Secret    = fset.String("s3-secret-key", "", "S3 secret key")
	)
	fset.Parse(args)
	if *confFile != "" {
		if cfg, err := config.Load(*confFile); err == nil {
			applyConfigDefaults(fset, cfg)
		}
	}
	if *root == "" || *dest == "" {
		return errs.New(errs.KindRange, "main.cmdCreate", fmt.Errorf("-root and -out are required"))
	}

	store, err := openStore(*dest, *s3Region, *s3Endpoint, *s3Key, *s3Secret)
	if err != nil {
		return err
	}

	prompter := uio.New(os.Stdin, os.Stderr)
	opts := archive.Options{
		Store:        store,
		SliceSize:    *sliceSize,
		CommandLine:  strings.Join(os.Args, " "),
		NoSpaceRetry: prompter.NoSpaceRetry,
	}
	if algo, err := resolveCompression(*compression); err == nil {
		opts.Compression = algo
	} else {
		return err
	}

	if *reference != "" {
		refStore := slice.NewLocalStore(filepath.Dir(*reference), filepath.Base(*reference), "dar", 3)
		refArchive, err := archive.Open(archive.Options{Store: refStore})
		if err != nil {
			return err
		}
		defer refArchive.Close()
		opts.Reference = refArchive.Catalog
	}

	stats, err := archive.Create(opts, *root)
	if err != nil {
		return err
	}
	fmt.Printf("created %d entries, %d bytes\n", stats.TotalEntries, stats.TotalBytes)
	return nil
}

func cmdExtract(args []string) error {
	fset := flag.NewFlagSet("extract", flag.ExitOnError)
	var (
		src      = fset.String("in", "", "archive basename to extract (required)")
		dest     = fset.String("out", "", "destination directory (required)")
		policy   = fset.String("overwrite", "ask", "overwrite policy: ask|always|never")
		nonInter = fset.Bool("non-interactive", false, "never prompt; implies -overwrite=never when ask would otherwise prompt")
	)
	fset.Parse(args)
	if *src == "" || *dest == "" {
		return errs.New(errs.KindRange, "main.cmdExtract", fmt.Errorf("-in and -out are required"))
	}

	store := slice.NewLocalStore(filepath.Dir(*src), filepath.Base(*src), "dar", 3)
	prompter := uio.New(os.Stdin, os.Stderr)
	openOpts := archive.Options{Store: store}
	if !*nonInter {
		openOpts.HeaderConfirm = prompter.ConfirmEdition
	}
	a, err := archive.Open(openOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	extractOpts := archive.ExtractOptions{DestRoot: *dest}
	switch strings.ToLower(*policy) {
	case "always":
		extractOpts.Policy = archive.OverwriteAlways
	case "never":
		extractOpts.Policy = archive.OverwriteNever
	default:
		extractOpts.Policy = archive.OverwriteAsk
		if *nonInter {
			extractOpts.Policy = archive.OverwriteNever
		} else {
			extractOpts.Confirm = prompter.ConfirmOverwrite
		}
	}

	return a.Extract(extractOpts)
}

func cmdTest(args []string) error {
	fset := flag.NewFlagSet("test", flag.ExitOnError)
	src := fset.String("in", "", "archive basename to test (required)")
	fset.Parse(args)
	if *src == "" {
		return errs.New(errs.KindRange, "main.cmdTest", fmt.Errorf("-in is required"))
	}

	store := slice.NewLocalStore(filepath.Dir(*src), filepath.Base(*src), "dar", 3)
	a, err := archive.Open(archive.Options{Store: store})
	if err != nil {
		return err
	}
	defer a.Close()

	failures, err := a.Test()
	if err != nil {
		return err
	}
	for _, f := range failures {
		fmt.Printf("CRC mismatch: %s (expected %x, got %x)\n", f.Path, f.Expected, f.Got)
	}
	if len(failures) > 0 {
		return errs.New(errs.KindData, "main.cmdTest", fmt.Errorf("%d entries failed CRC verification", len(failures)))
	}
	fmt.Println("all entries verified")
	return nil
}

func cmdDiff(args []string) error {
	fset := flag.NewFlagSet("diff", flag.ExitOnError)
	src := fset.String("in", "", "archive basename (required)")
	root := fset.String("root", "", "live directory to compare against (required)")
	fset.Parse(args)
	if *src == "" || *root == "" {
		return errs.New(errs.KindRange, "main.cmdDiff", fmt.Errorf("-in and -root are required"))
	}

	store := slice.NewLocalStore(filepath.Dir(*src), filepath.Base(*src), "dar", 3)
	a, err := archive.Open(archive.Options{Store: store})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Diff(*root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Status != archive.DiffUnchanged {
			fmt.Printf("%-8s %s\n", e.Status, e.Path)
		}
	}
	return nil
}

func cmdMount(args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	src := fset.String("in", "", "archive basename to mount (required)")
	mountpoint := fset.String("at", "", "mount point directory (required)")
	fset.Parse(args)
	if *src == "" || *mountpoint == "" {
		return errs.New(errs.KindRange, "main.cmdMount", fmt.Errorf("-in and -at are required"))
	}

	store := slice.NewLocalStore(filepath.Dir(*src), filepath.Base(*src), "dar", 3)
	a, err := archive.Open(archive.Options{Store: store})
	if err != nil {
		return err
	}
	defer a.Close()

	fsys, err := archivefs.New(a)
	if err != nil {
		return errs.New(errs.KindFeature, "main.cmdMount", err)
	}
	root, err := fsys.Root()
	if err != nil {
		return errs.New(errs.KindFeature, "main.cmdMount", err)
	}

	server, err := fuse.NewServer(fs.NewNodeFS(root, &fs.Options{}), *mountpoint, &fuse.MountOptions{})
	if err != nil {
		return errs.New(errs.KindHardware, "main.cmdMount", err)
	}
	go server.Serve()
	if err := server.WaitMount(); err != nil {
		return errs.New(errs.KindHardware, "main.cmdMount", err)
	}
	server.Wait()
	return nil
}

// applyConfigDefaults fills any flag the user didn't pass on the
// command line from the response file, so explicit flags still win
// (§1 "flags override file").
func applyConfigDefaults(fset *flag.FlagSet, cfg config.File) {
	explicit := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fromFile := map[string]string{
		"root":        cfg.Root,
		"out":         cfg.Create,
		"compression": cfg.Compression,
		"reference":   cfg.Reference,
	}
	if cfg.SliceSize != 0 {
		fromFile["slice-size"] = strconv.Itoa(cfg.SliceSize)
	}
	for name, val := range fromFile {
		if val == "" || explicit[name] {
			continue
		}
		fset.Set(name, val)
	}
}

func printUsage() {
	clihelp.Usage(`dar - backup/archive engine

Usage:
  dar create  -root dir -out archive [-compression NAME] [-slice-size N] [-reference archive]
  dar extract -in archive -out dir [-overwrite ask|always|never]
  dar test    -in archive
  dar diff    -in archive -root dir
  dar mount   -in archive -at mountpoint
  dar -h | help        usage
  dar -V | version     version
`)
}
