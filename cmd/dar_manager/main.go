// Command dar_manager drives pkg/dardb from the command line, exposing
// the flag surface of §6 "CLI surface of the database manager": exactly
// one action flag per invocation, -B naming the database every action
// but -C operates against.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dar-go/dar/internal/clihelp"
	"github.com/dar-go/dar/internal/logging"
	"github.com/dar-go/dar/pkg/dardb"
	"github.com/dar-go/dar/pkg/errs"
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
	case "-h", "--help":
		printUsage()
		return 0
	case "-V", "--version":
		clihelp.PrintVersion(os.Stdout, "dar_manager", version)
		return 0
	}

	var dbPath string
	rest := argv
	if argv[0] == "-B" {
		if len(argv) < 2 {
			fmt.Fprintln(os.Stderr, "-B requires a database path")
			return 1
		}
		dbPath = argv[1]
		rest = argv[2:]
	} else if argv[0] == "-C" {
		if len(argv) < 2 {
			fmt.Fprintln(os.Stderr, "-C requires a database path")
			return 1
		}
		db, err := dardb.Create(argv[1])
		if err != nil {
			return reportErr(err)
		}
		if err := db.Save(argv[1]); err != nil {
			return reportErr(err)
		}
		log.Info().Str("path", argv[1]).Msg("database created")
		return 0
	}

	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "an action other than -C requires -B <path> first")
		return 1
	}
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "no action flag given")
		return 1
	}

	db, err := dardb.Open(dbPath)
	if err != nil {
		return reportErr(err)
	}

	mutated := true
	var actionErr error
	switch rest[0] {
	case "-A":
		actionErr = cmdAdd(db, rest[1:])
	case "-l":
		mutated = false
		cmdList(db)
	case "-D":
		actionErr = cmdRemove(db, rest[1:])
	case "-b":
		actionErr = cmdChangeName(db, rest[1:])
	case "-p":
		actionErr = cmdSetPath(db, rest[1:])
	case "-o":
		db.SetOptions(rest[1:])
	case "-d":
		actionErr = cmdSetDarPath(db, rest[1:])
	case "-r":
		mutated = false
		actionErr = cmdRestore(db, rest[1:])
	case "-u":
		mutated = false
		actionErr = cmdShowFiles(db, rest[1:])
	case "-f":
		mutated = false
		actionErr = cmdShowVersion(db, rest[1:])
	case "-s":
		mutated = false
		cmdStats(db)
	case "-m":
		actionErr = cmdPermute(db, rest[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown action flag %q\n", rest[0])
		return 1
	}
	if actionErr != nil {
		return reportErr(actionErr)
	}

	if mutated {
		if err := db.Save(dbPath); err != nil {
			return reportErr(err)
		}
	}
	return 0
}

func cmdAdd(db *dardb.Database, args []string) error {
	if len(args) != 1 {
		return errs.New(errs.KindRange, "main.cmdAdd", fmt.Errorf("-A requires exactly one archive basename"))
	}
	return db.AddArchive(filepath.Dir(args[0]), filepath.Base(args[0]))
}

func cmdList(db *dardb.Database) {
	for _, row := range db.ShowContents() {
		fmt.Printf("%3d  %-30s  %s\n", row.Slot, row.Basename, row.Path)
	}
}

func cmdRemove(db *dardb.Database, args []string) error {
	k, err := parseSlot(args, "-D")
	if err != nil {
		return err
	}
	return db.RemoveSlot(k)
}

func cmdChangeName(db *dardb.Database, args []string) error {
	if len(args) != 2 {
		return errs.New(errs.KindRange, "main.cmdChangeName", fmt.Errorf("-b requires slot# and new-name"))
	}
	k, err := strconv.Atoi(args[0])
	if err != nil {
		return errs.New(errs.KindRange, "main.cmdChangeName", fmt.Errorf("bad slot number %q", args[0]))
	}
	return db.ChangeName(k, args[1])
}

func cmdSetPath(db *dardb.Database, args []string) error {
	if len(args) != 2 {
		return errs.New(errs.KindRange, "main.cmdSetPath", fmt.Errorf("-p requires slot# and new-path"))
	}
	k, err := strconv.Atoi(args[0])
	if err != nil {
		return errs.New(errs.KindRange, "main.cmdSetPath", fmt.Errorf("bad slot number %q", args[0]))
	}
	return db.SetPath(k, args[1])
}

func cmdSetDarPath(db *dardb.Database, args []string) error {
	if len(args) != 1 {
		return errs.New(errs.KindRange, "main.cmdSetDarPath", fmt.Errorf("-d requires a path"))
	}
	db.SetDarPath(args[0])
	return nil
}

func cmdRestore(db *dardb.Database, args []string) error {
	results, err := db.Restore(args)
	if err != nil {
		return err
	}
	failed := false
	for _, r := range results {
		switch {
		case r.Skipped:
			log.Warn().Str("path", r.Path).Msg("not in file index, skipped")
		case r.Err != nil:
			log.Error().Err(r.Err).Str("path", r.Path).Msg("restore failed")
			failed = true
		default:
			os.Stdout.Write(r.Output)
		}
	}
	if failed {
		return errs.New(errs.KindScript, "main.cmdRestore", fmt.Errorf("one or more restores failed"))
	}
	return nil
}

func cmdShowFiles(db *dardb.Database, args []string) error {
	k, err := parseSlot(args, "-u")
	if err != nil {
		return err
	}
	for _, p := range db.ShowFiles(k) {
		fmt.Println(p)
	}
	return nil
}

func cmdShowVersion(db *dardb.Database, args []string) error {
	if len(args) != 1 {
		return errs.New(errs.KindRange, "main.cmdShowVersion", fmt.Errorf("-f requires a path"))
	}
	for _, slot := range db.ShowVersion(args[0]) {
		fmt.Println(slot)
	}
	return nil
}

func cmdStats(db *dardb.Database) {
	for slot, count := range db.ShowMostRecentStats() {
		fmt.Printf("slot %d: %d most-recent entries\n", slot, count)
	}
}

func cmdPermute(db *dardb.Database, args []string) error {
	if len(args) != 2 {
		return errs.New(errs.KindRange, "main.cmdPermute", fmt.Errorf("-m requires two slot numbers"))
	}
	a, err1 := strconv.Atoi(args[0])
	b, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return errs.New(errs.KindRange, "main.cmdPermute", fmt.Errorf("bad slot numbers %q %q", args[0], args[1]))
	}
	return db.Permute(a, b)
}

func parseSlot(args []string, flag string) (int, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindRange, "main.parseSlot", fmt.Errorf("%s requires exactly one slot number", flag))
	}
	k, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errs.New(errs.KindRange, "main.parseSlot", fmt.Errorf("bad slot number %q", args[0]))
	}
	return k, nil
}

func reportErr(err error) int {
	return clihelp.Fail("dar_manager failed", err)
}

func printUsage() {
	clihelp.Usage(`dar_manager - archive database manager

Usage:
  dar_manager -C path                create empty database
  dar_manager -B path -A basename     add archive
  dar_manager -B path -l              list slots
  dar_manager -B path -D slot#        delete slot
  dar_manager -B path -b slot# name   change basename
  dar_manager -B path -p slot# path   change path
  dar_manager -B path -o ...          set extra dar options
  dar_manager -B path -d path         set dar invocation path
  dar_manager -B path -r path...      restore listed paths
  dar_manager -B path -u slot#        list files provided by slot (0=all)
  dar_manager -B path -f path         list versions of one path
  dar_manager -B path -s              show most-recent stats
  dar_manager -B path -m a b          permute slots a and b
  dar_manager -h                      usage
  dar_manager -V                      version
`)
}
