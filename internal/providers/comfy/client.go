package comfy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"gateway/internal/domain"
	"gateway/internal/infra"
	"gateway/internal/relay"
)

const (
	promptPath  = "/prompt"
	historyPath = "/history"
	viewPath    = "/view"
	statsPath   = "/system_stats"
)

// Options configures the node-graph backend client.
type Options struct {
	Relay        *relay.Client
	Logger       *infra.Logger
	ClientID     string
	PollInterval time.Duration
	PollBudget   time.Duration
}

// Client drives the submit/poll/fetch workflow against a node-graph
// generation backend. The target is supplied per call because the base URL
// arrives with each inbound request.
type Client struct {
	relay        *relay.Client
	logger       *infra.Logger
	clientID     string
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewClient wires a client with defaults for anything unset.
func NewClient(opts Options) *Client {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	budget := opts.PollBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.Nop())
		logger = &discard
	}
	return &Client{
		relay:        opts.Relay,
		logger:       logger,
		clientID:     opts.ClientID,
		pollInterval: interval,
		pollBudget:   budget,
	}
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
}

// historyEntry is the per-job record in the backend's history mapping.
// Outputs are keyed by node id, each node contributing a list of images.
type historyEntry struct {
	Outputs map[string]struct {
		Images []AssetRef `json:"images"`
	} `json:"outputs"`
}

// AssetRef locates one generated image on the backend.
type AssetRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Result is one generated image, body re-encoded as base64 text.
type Result struct {
	Ref    AssetRef
	Data   string
	Format string
}

// Ping probes the backend's stats endpoint.
func (c *Client) Ping(ctx context.Context, target *relay.Target) error {
	var out map[string]any
	return c.relay.GetJSON(ctx, target, statsPath, &out)
}

// Generate runs the full three-phase flow: submit the job graph, poll the
// history mapping until the job id appears, then fetch the first image
// output. Any phase failing aborts the flow; the submitted job is not
// cancelled on the backend.
func (c *Client) Generate(ctx context.Context, target *relay.Target, graph json.RawMessage) (*Result, error) {
	jobID, err := c.submit(ctx, target, graph)
	if err != nil {
		return nil, err
	}
	entry, err := c.poll(ctx, target, jobID)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, target, jobID, entry)
}

func (c *Client) submit(ctx context.Context, target *relay.Target, graph json.RawMessage) (string, error) {
	payload := map[string]json.RawMessage{
		"prompt":    graph,
		"client_id": json.RawMessage(fmt.Sprintf("%q", c.clientID)),
	}
	var resp promptResponse
	if err := c.relay.PostJSON(ctx, target, promptPath, payload, &resp); err != nil {
		return "", fmt.Errorf("%w: submit: %v", domain.ErrGenerationFailed, err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("%w: submit returned no job id", domain.ErrGenerationFailed)
	}
	c.logger.Debug().Str("job_id", resp.PromptID).Msg("comfy: job submitted")
	return resp.PromptID, nil
}

// poll fetches the full history mapping on a fixed cadence and looks the job
// id up as an exact-match key. The loop is bounded by the poll budget and by
// the request context, so a disconnected client stops the polling.
func (c *Client) poll(ctx context.Context, target *relay.Target, jobID string) (*historyEntry, error) {
	deadline := time.NewTimer(c.pollBudget)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		history := map[string]historyEntry{}
		if err := c.relay.GetJSON(ctx, target, historyPath, &history); err != nil {
			return nil, fmt.Errorf("%w: poll: %v", domain.ErrGenerationFailed, err)
		}
		if entry, ok := history[jobID]; ok {
			return &entry, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			c.logger.Warn().Str("job_id", jobID).Dur("budget", c.pollBudget).Msg("comfy: job never appeared in history")
			return nil, fmt.Errorf("%w: job %s", domain.ErrGenerationTimeout, jobID)
		case <-ticker.C:
		}
	}
}

// fetch flattens the per-node output lists and retrieves the first image
// across them; remaining outputs are ignored. The view query parameters are
// copied verbatim from the history entry.
func (c *Client) fetch(ctx context.Context, target *relay.Target, jobID string, entry *historyEntry) (*Result, error) {
	var ref *AssetRef
	nodes := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	for _, id := range nodes {
		if images := entry.Outputs[id].Images; len(images) > 0 {
			img := images[0]
			ref = &img
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: job %s produced no image outputs", domain.ErrGenerationFailed, jobID)
	}
	u := target.Endpoint(viewPath)
	u.RawQuery = fmt.Sprintf("filename=%s&subfolder=%s&type=%s", ref.Filename, ref.Subfolder, ref.Type)
	data, format, err := c.relay.GetBinary(ctx, target, u)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrGenerationFailed, ref.Filename, err)
	}
	if format == "" {
		format = "image/png"
	}
	return &Result{
		Ref:    *ref,
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: format,
	}, nil
}
