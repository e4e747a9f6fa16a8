// Command xmemory is a command-line client for the XMemory backend. It shares
// the console's session store, so a login survives between invocations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/scrypster/xmemory/internal/config"
	"github.com/scrypster/xmemory/internal/logging"
	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
	"go.uber.org/zap"
)

// sessionKey is the store key of the command-line session.
const sessionKey = "cli"

const usage = `Usage: xmemory [-config FILE] COMMAND [ARGS]

Commands:
  login -u USER -p PASSWORD
  logout
  list [-page N] [-page-size N] [-sort-by FIELD] [-sort-order asc|desc] [-type TYPE] [-parent ID]
  search -q QUERY [-n SIZE]
  create -content TEXT [-title T] [-tags a,b] [-type TYPE] [-created-at "YYYY-MM-DD HH:MM:SS"]
  get ID
  update ID [-content TEXT] [-title T] [-tags a,b] [-status STATUS]
  delete [-yes] ID...
  projects
  tasks PROJECT_ID
`

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: $XMEMORY_CONFIG)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("XMEMORY_CONFIG")
	}
	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := run(ctx, cfg, logger, flag.Args(), os.Stdout, os.Stderr)
	cancel()
	_ = logger.Sync()
	os.Exit(code)
}

// cli holds what every command needs.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	sess   *session.Session
	api    *client.Client
	out    io.Writer
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	store, err := session.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	sess, err := session.NewManager(store, logger).Get(ctx, sessionKey)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	c := &cli{
		cfg:    cfg,
		logger: logger,
		sess:   sess,
		api: client.New(cfg.Backend.BaseURL, sess,
			client.WithTimeout(cfg.Backend.Timeout),
			client.WithBreaker(client.NewBreaker(client.BreakerConfig{MaxFailures: cfg.Backend.BreakerMaxFailures, Timeout: cfg.Backend.BreakerOpenTimeout}, logger)),
			client.WithLogger(logger)),
		out: stdout,
	}

	commands := map[string]func(context.Context, []string) error{
		"login":    c.login,
		"logout":   c.logout,
		"list":     c.list,
		"search":   c.search,
		"create":   c.create,
		"get":      c.get,
		"update":   c.update,
		"delete":   c.delete,
		"projects": c.projects,
		"tasks":    c.tasks,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if args[0] != "login" && !sess.Active() {
		fmt.Fprintln(stderr, "not logged in, run: xmemory login -u USER -p PASSWORD")
		return 1
	}

	if err := cmd(ctx, args[1:]); err != nil {
		return report(stderr, err)
	}
	return 0
}

// usageError marks bad command-line arguments.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// report prints err for a human and returns the exit code.
func report(w io.Writer, err error) int {
	var (
		uerr *usageError
		verr *views.ValidationError
	)
	switch {
	case errors.As(err, &uerr):
		fmt.Fprintf(w, "%s\n\n%s", uerr.msg, usage)
		return 2
	case errors.Is(err, flag.ErrHelp):
		return 2
	case client.IsUnauthorized(err):
		fmt.Fprintln(w, "session expired, please login again")
	case errors.Is(err, client.ErrInvalidCredentials):
		fmt.Fprintln(w, "invalid username or password")
	case errors.Is(err, client.ErrCircuitOpen):
		fmt.Fprintln(w, "the memory service is not responding, try again later")
	case errors.Is(err, views.ErrNotConfirmed):
		fmt.Fprintln(w, "refusing to delete without -yes")
	case errors.As(err, &verr):
		names := make([]string, 0, len(verr.Fields))
		for name := range verr.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s %s\n", name, verr.Fields[name])
		}
	default:
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return 1
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: fs.Name() + ": " + err.Error()}
	}
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	form := views.LoginForm{}
	fs.StringVar(&form.Username, "u", "", "username")
	fs.StringVar(&form.Password, "p", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := form.Submit(ctx, c.api); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s\n", c.sess.UserID())
	return nil
}

func (c *cli) logout(ctx context.Context, _ []string) error {
	if err := c.api.Logout(ctx); err != nil {
		c.logger.Warn("backend logout failed", zap.Error(err))
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	var (
		p          views.ListParams
		memoryType string
		parent     string
	)
	fs.IntVar(&p.Page, "page", 1, "page number")
	fs.IntVar(&p.PageSize, "page-size", c.cfg.UI.PageSize, "rows per page")
	fs.StringVar(&p.SortBy, "sort-by", types.SortByCreatedAt, "created_at or updated_at")
	fs.StringVar(&p.SortOrder, "sort-order", types.SortDesc, "asc or desc")
	fs.StringVar(&memoryType, "type", string(types.MemoryTypeAll), "memory type filter")
	fs.StringVar(&parent, "parent", "", "parent memory id")
	if err := parse(fs, args); err != nil {
		return err
	}
	p.MemoryType = types.MemoryType(memoryType)
	p.ParentID = &parent

	l := views.NewMemoryList(c.api, c.sess.UserID(), c.logger)
	if err := l.Apply(ctx, p); err != nil {
		return err
	}
	c.printMemories(l.Rows())
	fmt.Fprintf(c.out, "%s (page %d of %d)\n", l.RangeLabel(), l.Query().Page, l.TotalPages())
	return nil
}

func (c *cli) search(ctx context.Context, args []string) error {
	fs := newFlagSet("search")
	form := views.SearchForm{UserID: c.sess.UserID()}
	fs.StringVar(&form.Query, "q", "", "search query")
	fs.IntVar(&form.Size, "n", 10, "maximum number of results")
	if err := parse(fs, args); err != nil {
		return err
	}
	results, err := form.Submit(ctx, c.api)
	if err != nil {
		return err
	}
	c.printMemories(results)
	return nil
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	form := views.CreateMemoryForm{UserID: c.sess.UserID()}
	fs.StringVar(&form.Content, "content", "", "memory content")
	fs.StringVar(&form.Title, "title", "", "title")
	fs.StringVar(&form.Tags, "tags", "", "comma separated tags")
	fs.StringVar(&form.MemoryType, "type", string(types.MemoryTypeRaw), "memory type")
	fs.StringVar(&form.CreatedAt, "created-at", "", `creation time, "YYYY-MM-DD HH:MM:SS"`)
	if err := parse(fs, args); err != nil {
		return err
	}
	mem, err := form.Submit(ctx, c.api)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created %s\n", mem.ID)
	return nil
}

func (c *cli) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return &usageError{msg: "get: exactly one ID is required"}
	}
	mem, err := c.api.GetMemory(ctx, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", mem.ID)
	fmt.Fprintf(tw, "Type:\t%s\n", mem.MemoryType.Label())
	fmt.Fprintf(tw, "Title:\t%s\n", mem.DisplayTitle("-"))
	if mem.Summary != "" {
		fmt.Fprintf(tw, "Summary:\t%s\n", mem.Summary)
	}
	if len(mem.Tags) > 0 {
		fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(mem.Tags, ", "))
	}
	if mem.ParentID != "" {
		fmt.Fprintf(tw, "Parent:\t%s\n", mem.ParentID)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(mem.CreatedAt))
	if t, changed := mem.Updated(); changed {
		fmt.Fprintf(tw, "Updated:\t%s\n", t.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	fmt.Fprintf(c.out, "\n%s\n", mem.Content)
	return nil
}

func (c *cli) update(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return &usageError{msg: "update: ID is required"}
	}
	id := args[0]

	fs := newFlagSet("update")
	content := fs.String("content", "", "new content")
	title := fs.String("title", "", "new title")
	tags := fs.String("tags", "", "new comma separated tags")
	status := fs.String("status", "", "task status")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}

	var req types.UpdateMemoryRequest
	var problems []string
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "content":
			v := strings.TrimSpace(*content)
			if v == "" {
				problems = append(problems, "content must not be empty")
			}
			req.Content = &v
		case "title":
			v := strings.TrimSpace(*title)
			req.Title = &v
		case "tags":
			v := types.ParseTags(*tags)
			if v == nil {
				v = []string{}
			}
			req.Tags = &v
		case "status":
			if !types.TaskStatus(*status).IsValid() {
				problems = append(problems, fmt.Sprintf("unknown status %q", *status))
			}
			req.Summary = status
		}
	})
	if len(problems) > 0 {
		return &usageError{msg: "update: " + strings.Join(problems, ", ")}
	}
	if req.IsEmpty() {
		return &usageError{msg: "update: nothing to update"}
	}

	mem, err := c.api.UpdateMemory(ctx, id, c.sess.UserID(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Updated %s\n", mem.ID)
	return nil
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	yes := fs.Bool("yes", false, "confirm the deletion")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return &usageError{msg: "delete: at least one ID is required"}
	}

	l := views.NewMemoryList(c.api, c.sess.UserID(), c.logger)
	l.SetSelection(fs.Args())
	err := l.DeleteSelected(ctx, *yes)

	var derr *views.DeleteError
	switch {
	case errors.As(err, &derr):
		for _, id := range derr.IDs() {
			fmt.Fprintf(c.out, "failed: %s: %v\n", id, derr.Failed[id])
		}
		if n := derr.Total - len(derr.Failed); n > 0 {
			fmt.Fprintf(c.out, "Deleted %d of %d\n", n, derr.Total)
		}
		return err
	case errors.Is(err, views.ErrNotConfirmed):
		return err
	}
	// A failed refresh after the deletes does not undo them.
	fmt.Fprintln(c.out, l.Notice())
	if err != nil {
		c.logger.Debug("refresh after delete failed", zap.Error(err))
	}
	if client.IsUnauthorized(err) {
		return err
	}
	return nil
}

func (c *cli) projects(ctx context.Context, args []string) error {
	fs := newFlagSet("projects")
	var p views.ListParams
	fs.IntVar(&p.Page, "page", 1, "page number")
	fs.IntVar(&p.PageSize, "page-size", c.cfg.UI.PageSize, "rows per page")
	if err := parse(fs, args); err != nil {
		return err
	}

	l := views.NewProjectList(c.api, c.sess.UserID(), c.logger)
	if err := l.Apply(ctx, p); err != nil {
		return err
	}
	c.printMemories(l.Rows())
	fmt.Fprintln(c.out, l.RangeLabel())
	return nil
}

func (c *cli) tasks(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return &usageError{msg: "tasks: exactly one PROJECT_ID is required"}
	}
	detail, err := views.LoadProjectDetail(ctx, c.api, c.sess.UserID(), args[0], c.logger)
	if err != nil {
		return err
	}
	if err := detail.Tasks.Err(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s\n\n", detail.Project.DisplayTitle("(untitled)"))
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tID\tTITLE")
	for _, t := range detail.Tasks.Tasks() {
		status := string(t.TaskStatus())
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", status, t.ID, t.DisplayTitle("(untitled)"))
	}
	return tw.Flush()
}

func (c *cli) printMemories(rows []types.Memory) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCREATED\tTITLE")
	for _, m := range rows {
		title := m.DisplayTitle("")
		if title == "" {
			title = truncate(m.Content, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.MemoryType, formatTime(m.CreatedAt), title)
	}
	_ = tw.Flush()
}

func formatTime(s string) string {
	t, ok := types.ParseTimestamp(s)
	if !ok {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
