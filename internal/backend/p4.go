package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// PerforceClient shells out to the p4 command line for workspace and session
// queries. Matching itself is never delegated to p4; only `p4 info` and
// `p4 login -s` are used.
type PerforceClient struct {
	binary  string
	timeout time.Duration
}

// NewPerforceClient creates a Perforce-backed Client. binary is the p4
// executable ("p4" resolves via PATH); timeout bounds each invocation.
func NewPerforceClient(binary string, timeout time.Duration) *PerforceClient {
	if binary == "" {
		binary = "p4"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PerforceClient{binary: binary, timeout: timeout}
}

// DescribeClient runs `p4 info` from path and parses the client spec.
func (c *PerforceClient) DescribeClient(ctx context.Context, path string) (*ClientSpec, error) {
	stdout, stderr, err := c.run(ctx, path, "info")
	if err != nil {
		return nil, err
	}
	if stderr != "" {
		return nil, fmt.Errorf("p4 info: %s", strings.TrimSpace(stderr))
	}
	return parseInfo(stdout)
}

// SessionStatus runs `p4 login -s` and classifies the response.
func (c *PerforceClient) SessionStatus(ctx context.Context) (SessionInfo, error) {
	stdout, stderr, err := c.run(ctx, "", "login", "-s")
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return SessionInfo{}, err
		}
		// Non-zero exit is how p4 reports a missing or expired ticket;
		// the message on stderr tells which.
	}
	return classifySession(stdout, stderr), nil
}

// run executes the p4 binary with the given working directory.
func (c *PerforceClient) run(ctx context.Context, dir string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", fmt.Errorf("%w: %s not found", ErrUnavailable, c.binary)
		}
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("p4 %s: %w", args[0], ctx.Err())
		}
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

// parseInfo extracts client root and name from `p4 info` output.
func parseInfo(output string) (*ClientSpec, error) {
	var spec ClientSpec
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Client root:"):
			spec.Root = strings.TrimSpace(strings.TrimPrefix(line, "Client root:"))
		case strings.HasPrefix(line, "Client name:"):
			spec.Name = strings.TrimSpace(strings.TrimPrefix(line, "Client name:"))
		case strings.HasPrefix(line, "Client unknown."):
			return nil, ErrNoClient
		}
	}
	// p4 reports the hostname as the client name when no client spec
	// matches; an empty root is the reliable signal either way.
	if spec.Root == "" {
		return nil, ErrNoClient
	}
	return &spec, nil
}

// classifySession maps `p4 login -s` output to a session state.
func classifySession(stdout, stderr string) SessionInfo {
	combined := stdout + "\n" + stderr
	switch {
	case strings.Contains(combined, "ticket expires"):
		// "User alice ticket expires in 11 hours 21 minutes."
		return SessionInfo{LoggedIn: true}
	case strings.Contains(combined, "session has expired"):
		return SessionInfo{LoggedIn: true, Expired: true}
	case strings.Contains(combined, "not yet logged in"),
		strings.Contains(combined, "invalid or unset"):
		// "Perforce password (P4PASSWD) invalid or unset."
		return SessionInfo{LoggedIn: false}
	default:
		// A ticket that never expires prints nothing unusual; treat any
		// other successful response as an active session.
		return SessionInfo{LoggedIn: stderr == ""}
	}
}
