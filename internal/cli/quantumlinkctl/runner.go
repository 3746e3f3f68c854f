package quantumlinkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	args  int
	usage string
	path  func(args []string, limit int) string
}

var commands = map[string]command{
	"health": {
		usage: "GET /v1/health",
		path:  func([]string, int) string { return "/v1/health" },
	},
	"ready": {
		usage: "GET /v1/ready",
		path:  func([]string, int) string { return "/v1/ready" },
	},
	"uploads": {
		usage: "GET /v1/uploads",
		path:  func([]string, int) string { return "/v1/uploads" },
	},
	"columns": {
		args:  1,
		usage: "GET /v1/columns?path=<path>",
		path: func(args []string, _ int) string {
			return "/v1/columns?" + url.Values{"path": {args[0]}}.Encode()
		},
	},
	"jobs": {
		usage: "GET /v1/jobs (-limit n)",
		path: func(_ []string, limit int) string {
			if limit > 0 {
				return "/v1/jobs?limit=" + strconv.Itoa(limit)
			}
			return "/v1/jobs"
		},
	},
	"job": {
		args:  1,
		usage: "GET /v1/jobs/<id>",
		path: func(args []string, _ int) string {
			return "/v1/jobs/" + url.PathEscape(args[0])
		},
	},
	"presign": {
		args:  1,
		usage: "GET /v1/jobs/<id>/download?presign=true",
		path: func(args []string, _ int) string {
			return "/v1/jobs/" + url.PathEscape(args[0]) + "/download?presign=true"
		},
	},
}

var commandOrder = []string{"health", "ready", "uploads", "columns", "jobs", "job", "presign"}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("quantumlinkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "QuantumLink API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	limit := fs.Int("limit", 0, "maximum number of jobs to list")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	rest := fs.Args()[1:]
	if len(rest) != cmd.args {
		_, _ = fmt.Fprintf(stderr, "%s expects %d argument(s), got %d\n", name, cmd.args, len(rest))
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + cmd.path(rest, *limit)
	code, responseBody, err := doRequest(ctx, client, http.MethodGet, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: quantumlinkctl [flags] <command> [arg]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].usage)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
