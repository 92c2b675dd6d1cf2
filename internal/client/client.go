package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

const (
	opFetchTags = "fetch tags"

	// DefaultPulseMs is used when a command is issued with a zero pulse.
	DefaultPulseMs uint32 = 400

	defaultTimeout = 5 * time.Second
)

// Command is a pulsed controller command.
type Command string

const (
	CommandStop   Command = "stop"
	CommandReset  Command = "reset"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandEmpty  Command = "empty"
)

// Commands lists every command kind in display order.
var Commands = []Command{CommandStop, CommandReset, CommandPause, CommandResume, CommandEmpty}

var commandPaths = map[Command]string{
	CommandStop:   "/api/cmd/parar",
	CommandReset:  "/api/cmd/reset",
	CommandResume: "/api/cmd/resume",
	CommandPause:  "/api/cmd/stoptime",
	CommandEmpty:  "/api/cmd/empty",
}

// ParseCommand maps a command name to its kind.
func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	_, ok := commandPaths[c]
	return c, ok
}

func (c Command) Path() string { return commandPaths[c] }

type Client struct {
	base string
	http *http.Client
}

func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: TrimBase(base), http: httpClient}
}

// TrimBase strips trailing slashes so paths can be appended verbatim.
func TrimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

func (c *Client) Base() string { return c.base }

// FetchTags reads the current tag snapshot. Caches are bypassed on every call.
func (c *Client) FetchTags(ctx context.Context) (tags.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/tags", nil)
	if err != nil {
		return tags.Snapshot{}, &TransportError{Op: opFetchTags, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return tags.Snapshot{}, &TransportError{Op: opFetchTags, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return tags.Snapshot{}, &HTTPError{Op: opFetchTags, Status: resp.StatusCode}
	}

	var payload tags.Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return tags.Snapshot{}, &DecodeError{Err: err}
	}
	if payload.Tags == nil {
		return tags.Snapshot{}, &DecodeError{Err: errors.New("missing tags object")}
	}

	return tags.Normalize(payload), nil
}

// Issue sends one pulse command. A failed command is returned as is and never retried.
func (c *Client) Issue(ctx context.Context, cmd Command, pulseMs uint32) error {
	path, ok := commandPaths[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if pulseMs == 0 {
		pulseMs = DefaultPulseMs
	}

	q := url.Values{}
	q.Set("pulseMs", strconv.FormatUint(uint64(pulseMs), 10))
	target := c.base + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return &TransportError{Op: "command " + string(cmd), Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "command " + string(cmd), Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &CommandError{Kind: cmd, Status: resp.StatusCode}
	}

	log.Debug().
		Str("command", string(cmd)).
		Uint32("pulse_ms", pulseMs).
		Int("status", resp.StatusCode).
		Msg("Command accepted by controller")
	return nil
}

// Stop asserts the emergency stop signal.
func (c *Client) Stop(ctx context.Context, pulseMs uint32) error {
	return c.Issue(ctx, CommandStop, pulseMs)
}

func (c *Client) Reset(ctx context.Context, pulseMs uint32) error {
	return c.Issue(ctx, CommandReset, pulseMs)
}

// Pause stops the cycle timer on the controller.
func (c *Client) Pause(ctx context.Context, pulseMs uint32) error {
	return c.Issue(ctx, CommandPause, pulseMs)
}

func (c *Client) Resume(ctx context.Context, pulseMs uint32) error {
	return c.Issue(ctx, CommandResume, pulseMs)
}

func (c *Client) Empty(ctx context.Context, pulseMs uint32) error {
	return c.Issue(ctx, CommandEmpty, pulseMs)
}
