// Package main is the pagewright-publish CLI: it stages content drafts in the
// local workspace and publishes them as a single atomic commit, either through
// a pagewright server or directly into a local repository.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/pagewright/pagewright/internal/drafts"
	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/publish"
)

const usage = `usage: pagewright-publish [flags] <command> [args]

Commands:
  note     Stage a note draft from a markdown file
  roadmap  Stage a roadmap draft from a YAML file
  mindmap  Stage a mindmap draft from a JSON file
  config   Stage a site config file draft
  asset    Stage binary uploads and deletions
  rm       Stage a pending delete for a published entity
  list     List staged drafts
  discard  Discard staged drafts
  publish  Publish all staged drafts as one commit

Flags:
`

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "pagewright-publish: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	store  *drafts.Store
	owner  string
	repo   string
	branch string
}

func mainImpl() error {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	draftsDir := flag.String("drafts-dir", defaultDraftsDir(), "Directory holding the draft workspace")
	owner := flag.String("owner", "", "Content repository owner")
	repo := flag.String("repo", "", "Content repository name")
	branch := flag.String("branch", "main", "Content branch to publish to")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	if *owner == "" || *repo == "" {
		return errors.New("-owner and -repo are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := os.MkdirAll(*draftsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create drafts directory: %w", err)
	}
	store, err := drafts.Open(*draftsDir, drafts.TargetID(*owner, *repo, *branch))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	e := &env{store: store, owner: *owner, repo: *repo, branch: *branch}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "note":
		return cmdNote(e, args)
	case "roadmap":
		return cmdEntity(e, drafts.KindRoadmap, args)
	case "mindmap":
		return cmdEntity(e, drafts.KindMindmap, args)
	case "config":
		return cmdConfig(e, args)
	case "asset":
		return cmdAsset(e, args)
	case "rm":
		return cmdRm(e, args)
	case "list":
		return cmdList(e, args)
	case "discard":
		return cmdDiscard(e, args)
	case "publish":
		return cmdPublish(ctx, e, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

func defaultDraftsDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pagewright", "drafts")
	}
	return ".pagewright-drafts"
}

// readSource reads a file argument, or stdin when the argument is "-".
func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func cmdNote(e *env, args []string) error {
	fs := flag.NewFlagSet("note", flag.ContinueOnError)
	id := fs.String("id", "", "Existing note id (empty for a new note)")
	title := fs.String("title", "", "Note title")
	date := fs.String("date", "", "Publication date (YYYY-MM-DD)")
	slug := fs.String("slug", "", "Explicit slug for a new note")
	base := fs.String("base", "", "File holding the last published body, for metadata merge")
	categories := fs.String("categories", "", "Comma-separated categories")
	tags := fs.String("tags", "", "Comma-separated tags")
	cover := fs.String("cover", "", "Cover image path")
	hidden := fs.Bool("draft", false, "Mark the note as a draft on the site")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("note requires exactly one body file argument")
	}
	body, err := readSource(fs.Arg(0))
	if err != nil {
		return err
	}
	baseBody := ""
	if *base != "" {
		if baseBody, err = readSource(*base); err != nil {
			return err
		}
	}
	d, err := e.store.Put(drafts.Draft{Kind: drafts.KindNote, Note: &drafts.NoteDraft{
		RemoteID:   *id,
		BaseBody:   baseBody,
		Title:      *title,
		Date:       *date,
		Slug:       *slug,
		Categories: splitList(*categories),
		Tags:       splitList(*tags),
		Cover:      *cover,
		DraftFlag:  *hidden,
		Body:       body,
	}})
	if err != nil {
		return err
	}
	fmt.Printf("staged note draft %s\n", d.Key)
	return nil
}

func cmdEntity(e *env, kind drafts.Kind, args []string) error {
	fs := flag.NewFlagSet(string(kind), flag.ContinueOnError)
	id := fs.String("id", "", "Entity id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s requires exactly one body file argument", kind)
	}
	body, err := readSource(fs.Arg(0))
	if err != nil {
		return err
	}
	ed := &drafts.EntityDraft{ID: *id, Body: body}
	d := drafts.Draft{Kind: kind}
	if kind == drafts.KindRoadmap {
		d.Roadmap = ed
	} else {
		d.Mindmap = ed
	}
	stored, err := e.store.Put(d)
	if err != nil {
		return err
	}
	fmt.Printf("staged %s draft %s\n", kind, stored.Key)
	return nil
}

func cmdConfig(e *env, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	file := fs.String("file", "", "Config file name (site.yml, navigation.yml, profile.yml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	if fs.NArg() != 1 {
		return errors.New("config requires exactly one body file argument")
	}
	body, err := readSource(fs.Arg(0))
	if err != nil {
		return err
	}
	d, err := e.store.Put(drafts.Draft{Kind: drafts.KindConfig, Config: &drafts.ConfigDraft{File: *file, Body: body}})
	if err != nil {
		return err
	}
	fmt.Printf("staged config draft %s\n", d.Key)
	return nil
}

func cmdAsset(e *env, args []string) error {
	fs := flag.NewFlagSet("asset", flag.ContinueOnError)
	del := fs.String("delete", "", "Comma-separated asset names to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	batch := &drafts.AssetBatch{}
	// Uploads and deletions accumulate into the one live asset batch.
	for _, d := range e.store.List() {
		if d.Kind == drafts.KindAssets {
			batch = d.Assets
			break
		}
	}
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		batch.Uploads = append(batch.Uploads, drafts.AssetUpload{
			Name:    filepath.Base(path),
			Content: base64.StdEncoding.EncodeToString(data),
		})
	}
	batch.Deletes = append(batch.Deletes, splitList(*del)...)
	if len(batch.Uploads) == 0 && len(batch.Deletes) == 0 {
		return errors.New("asset requires file arguments or -delete")
	}
	d, err := e.store.Put(drafts.Draft{Kind: drafts.KindAssets, Assets: batch})
	if err != nil {
		return err
	}
	fmt.Printf("staged asset batch %s (%d uploads, %d deletes)\n", d.Key, len(batch.Uploads), len(batch.Deletes))
	return nil
}

func cmdRm(e *env, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	base := fs.String("base", "", "File holding the last published body, preserved in the trash mirror")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("rm requires a kind (note, roadmap, mindmap) and an id")
	}
	kind, id := drafts.Kind(fs.Arg(0)), fs.Arg(1)
	baseBody := ""
	if *base != "" {
		var err error
		if baseBody, err = readSource(*base); err != nil {
			return err
		}
	}
	d := drafts.Draft{Kind: kind}
	switch kind {
	case drafts.KindNote:
		d.Note = &drafts.NoteDraft{RemoteID: id, BaseBody: baseBody, PendingDelete: true}
	case drafts.KindRoadmap:
		d.Roadmap = &drafts.EntityDraft{ID: id, Body: baseBody, PendingDelete: true}
	case drafts.KindMindmap:
		d.Mindmap = &drafts.EntityDraft{ID: id, Body: baseBody, PendingDelete: true}
	default:
		return fmt.Errorf("cannot stage a delete for kind %q", kind)
	}
	stored, err := e.store.Put(d)
	if err != nil {
		return err
	}
	fmt.Printf("staged %s delete %s\n", kind, stored.Key)
	return nil
}

func cmdList(e *env, args []string) error {
	if len(args) > 0 {
		return errors.New("list takes no arguments")
	}
	all := e.store.List()
	if len(all) == 0 {
		fmt.Println("no staged drafts")
		return nil
	}
	for _, d := range all {
		entity := d.EntityID()
		if entity == "" {
			entity = "(new)"
		}
		extra := ""
		switch {
		case d.Kind == drafts.KindNote && d.Note.PendingDelete,
			d.Kind == drafts.KindRoadmap && d.Roadmap.PendingDelete,
			d.Kind == drafts.KindMindmap && d.Mindmap.PendingDelete:
			extra = " [pending delete]"
		case d.Kind == drafts.KindAssets:
			extra = fmt.Sprintf(" (%d uploads, %d deletes)", len(d.Assets.Uploads), len(d.Assets.Deletes))
		}
		fmt.Printf("%s  %-8s %s%s  saved %s\n", d.Key, d.Kind, entity, extra, d.SavedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func cmdDiscard(e *env, args []string) error {
	fs := flag.NewFlagSet("discard", flag.ContinueOnError)
	all := fs.Bool("all", false, "Discard every staged draft")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all {
		var keys []string
		for _, d := range e.store.List() {
			keys = append(keys, d.Key)
		}
		if err := e.store.DeleteAll(keys); err != nil {
			return err
		}
		fmt.Printf("discarded %d drafts\n", len(keys))
		return nil
	}
	if fs.NArg() == 0 {
		return errors.New("discard requires draft keys or -all")
	}
	for _, key := range fs.Args() {
		if _, ok := e.store.Get(key); !ok {
			return fmt.Errorf("no staged draft %q", key)
		}
		if err := e.store.Delete(key); err != nil {
			return err
		}
	}
	fmt.Printf("discarded %d drafts\n", fs.NArg())
	return nil
}

func cmdPublish(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	server := fs.String("server", "", "pagewright server base URL (e.g., http://localhost:8080)")
	local := fs.String("local", "", "Publish directly into a local repository directory instead of a server")
	storageRoot := fs.String("storage-root", "", "Path prefix inside the repository (local publish only)")
	message := fs.String("m", "", "Commit message")
	expectedHead := fs.String("expected-head", "", "Require the branch head to be this sha")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}

	var committer gitstore.Committer
	switch {
	case *local != "":
		writer, err := gitstore.NewLocalWriter(*local, *storageRoot, "", "")
		if err != nil {
			return fmt.Errorf("failed to open local repository: %w", err)
		}
		committer = writer
	case *server != "":
		committer = publish.NewClient(strings.TrimRight(*server, "/"), os.Getenv("PAGEWRIGHT_API_TOKEN"))
	default:
		return errors.New("publish requires -server or -local")
	}

	rec := publish.NewReconciler(e.store, committer, e.branch)
	if *expectedHead != "" {
		rec.SetHead(*expectedHead)
	}
	result, err := rec.PublishAll(ctx, *message)
	// A non-nil result means the commit landed, even if clearing the local
	// drafts failed afterwards.
	if result != nil {
		fmt.Printf("published commit %s\n", result.SHA)
		if result.URL != "" {
			fmt.Println(result.URL)
		}
	}
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("nothing staged; no commit created")
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
