package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(adminCall(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second, os.Stdout))
}

// snapshotCmd asks a running server to write a snapshot now.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(adminCall(http.MethodPost, *baseURL, "/admin/v1/snapshot", 10*time.Second, os.Stdout))
}

// adminCall prints the response body and returns the process exit code.
func adminCall(method, baseURL, path string, timeout time.Duration, out io.Writer) int {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 2
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimRight(string(b), "\n"))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
