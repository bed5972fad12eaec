package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"

	"github.com/engramscm/engram-scm/internal/app"
	"github.com/engramscm/engram-scm/internal/config"
	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/internal/platform"
	"github.com/engramscm/engram-scm/internal/schemactx"
)

// Exit codes per spec §6: 0 success, 1 generic error, 2 invalid args, 3 no
// DSN, 4 not found.
const (
	exitOK          = 0
	exitError       = 1
	exitInvalidArgs = 2
	exitNoDSN       = 3
	exitNotFound    = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "ensure-repo":
			return runEnsureRepo(args[1:])
		case "list-repos":
			return runListRepos(args[1:])
		case "get-repo":
			return runGetRepo(args[1:])
		}
	}
	return runServerMode(args)
}

// runServerMode starts one of the long-running modes (serve, worker,
// scheduler, reaper) named by internal/config.Config.Mode, overridable by
// --mode.
func runServerMode(args []string) int {
	fs := flag.NewFlagSet("engram-scm", flag.ContinueOnError)
	mode := fs.String("mode", "", "run mode: serve, worker, scheduler, or reaper (overrides ENGRAM_SCM_MODE)")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		return exitError
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: no database DSN configured")
		return exitNoDSN
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		return exitError
	}
	return exitOK
}

// cliQueries loads config, opens a pool, and returns a schema-prefixed
// Queries bound to one acquired connection. Callers must call the
// returned release func.
func cliQueries(ctx context.Context) (*db.Queries, func(), int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		return nil, nil, exitError
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: no database DSN configured")
		return nil, nil, exitNoDSN
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connecting to database: %v\n", err)
		return nil, nil, exitError
	}

	sc := schemactx.Context{Prefix: cfg.SchemaPrefix}
	conn, err := sc.Acquire(ctx, pool)
	if err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, nil, exitError
	}

	release := func() {
		conn.Release()
		pool.Close()
	}
	return db.New(conn), release, exitOK
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: encoding output: %v\n", err)
		return exitError
	}
	return exitOK
}

func runEnsureRepo(args []string) int {
	fs := flag.NewFlagSet("ensure-repo", flag.ContinueOnError)
	repoType := fs.String("repo-type", "", "repo type: git or svn (required)")
	repoURL := fs.String("repo-url", "", "repo URL (required)")
	projectKey := fs.String("project-key", "", "project key, defaults to repo-url")
	defaultBranch := fs.String("default-branch", "", "default branch")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}
	if *repoType == "" || *repoURL == "" {
		fmt.Fprintln(os.Stderr, "error: --repo-type and --repo-url are required")
		return exitInvalidArgs
	}
	if *repoType != "git" && *repoType != "svn" {
		fmt.Fprintln(os.Stderr, "error: --repo-type must be git or svn")
		return exitInvalidArgs
	}

	projKey := *projectKey
	if projKey == "" {
		projKey = *repoURL
	}

	ctx := context.Background()
	q, release, code := cliQueries(ctx)
	if release != nil {
		defer release()
	}
	if code != exitOK {
		return code
	}

	repoID, err := q.UpsertRepo(ctx, db.UpsertRepoParams{
		RepoType:      *repoType,
		URL:           *repoURL,
		ProjectKey:    projKey,
		DefaultBranch: *defaultBranch,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: ensuring repo: %v\n", err)
		return exitError
	}

	repo, err := q.GetRepoByID(ctx, repoID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading repo: %v\n", err)
		return exitError
	}

	return printJSON(repo)
}

func runListRepos(args []string) int {
	fs := flag.NewFlagSet("list-repos", flag.ContinueOnError)
	repoType := fs.String("repo-type", "", "filter by repo type")
	limit := fs.Int("limit", 100, "max repos to return")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "error: --limit must be positive")
		return exitInvalidArgs
	}

	ctx := context.Background()
	q, release, code := cliQueries(ctx)
	if release != nil {
		defer release()
	}
	if code != exitOK {
		return code
	}

	repos, err := q.ListRepos(ctx, db.ListReposParams{RepoType: *repoType, Limit: int32(*limit)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: listing repos: %v\n", err)
		return exitError
	}

	return printJSON(repos)
}

func runGetRepo(args []string) int {
	fs := flag.NewFlagSet("get-repo", flag.ContinueOnError)
	repoID := fs.Int64("repo-id", 0, "repo id")
	repoType := fs.String("repo-type", "", "repo type, used with --repo-url")
	repoURL := fs.String("repo-url", "", "repo url, used with --repo-type")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}
	if *repoID == 0 && (*repoType == "" || *repoURL == "") {
		fmt.Fprintln(os.Stderr, "error: pass --repo-id, or both --repo-type and --repo-url")
		return exitInvalidArgs
	}

	ctx := context.Background()
	q, release, code := cliQueries(ctx)
	if release != nil {
		defer release()
	}
	if code != exitOK {
		return code
	}

	var repo db.Repo
	var err error
	if *repoID != 0 {
		repo, err = q.GetRepoByID(ctx, *repoID)
	} else {
		repo, err = q.GetRepoByURL(ctx, *repoType, *repoURL)
	}
	if err != nil {
		if err == pgx.ErrNoRows {
			fmt.Fprintln(os.Stderr, "error: repo not found")
			return exitNotFound
		}
		fmt.Fprintf(os.Stderr, "error: loading repo: %v\n", err)
		return exitError
	}

	return printJSON(repo)
}
