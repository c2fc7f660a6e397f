package webui

import (
	"context"

	"gateway/internal/relay"
)

const (
	optionsPath   = "/sdapi/v1/options"
	modelsPath    = "/sdapi/v1/sd-models"
	samplersPath  = "/sdapi/v1/samplers"
	upscalersPath = "/sdapi/v1/upscalers"
	latentPath    = "/sdapi/v1/latent-upscale-modes"
	vaesPath      = "/sdapi/v1/sd-vae"
	txt2imgPath   = "/sdapi/v1/txt2img"
)

// Client is a typed surface over the image-generation web UI's HTTP API.
type Client struct {
	relay *relay.Client
}

// NewClient wraps a relay client.
func NewClient(rc *relay.Client) *Client {
	return &Client{relay: rc}
}

// Choice is a value/text pair as consumed by select widgets; for model lists
// both fields carry the backend's title verbatim.
type Choice struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

type modelInfo struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
}

type namedItem struct {
	Name string `json:"name"`
}

// Ping probes the options endpoint to confirm the backend answers.
func (c *Client) Ping(ctx context.Context, target *relay.Target) error {
	var out map[string]any
	return c.relay.GetJSON(ctx, target, optionsPath, &out)
}

// Models returns the backend's model list transformed into value/text pairs,
// preserving backend ordering.
func (c *Client) Models(ctx context.Context, target *relay.Target) ([]Choice, error) {
	var models []modelInfo
	if err := c.relay.GetJSON(ctx, target, modelsPath, &models); err != nil {
		return nil, err
	}
	choices := make([]Choice, 0, len(models))
	for _, m := range models {
		choices = append(choices, Choice{Value: m.Title, Text: m.Title})
	}
	return choices, nil
}

// Samplers returns sampler names in backend order.
func (c *Client) Samplers(ctx context.Context, target *relay.Target) ([]string, error) {
	var samplers []namedItem
	if err := c.relay.GetJSON(ctx, target, samplersPath, &samplers); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(samplers))
	for _, s := range samplers {
		names = append(names, s.Name)
	}
	return names, nil
}

// Upscalers composes the combined upscaler list. Position 0 of the regular
// list is reserved for "None"; latent upscale modes are spliced in right
// after it, followed by the remaining regular upscalers.
func (c *Client) Upscalers(ctx context.Context, target *relay.Target) ([]string, error) {
	var regular []namedItem
	if err := c.relay.GetJSON(ctx, target, upscalersPath, &regular); err != nil {
		return nil, err
	}
	var latent []namedItem
	if err := c.relay.GetJSON(ctx, target, latentPath, &latent); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(regular)+len(latent))
	if len(regular) > 0 {
		names = append(names, regular[0].Name)
	}
	for _, l := range latent {
		names = append(names, l.Name)
	}
	if len(regular) > 1 {
		for _, u := range regular[1:] {
			names = append(names, u.Name)
		}
	}
	return names, nil
}

// VAEs returns VAE names in backend order.
func (c *Client) VAEs(ctx context.Context, target *relay.Target) ([]string, error) {
	var vaes []namedItem
	if err := c.relay.GetJSON(ctx, target, vaesPath, &vaes); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vaes))
	for _, v := range vaes {
		names = append(names, v.Name)
	}
	return names, nil
}

// CurrentModel returns the checkpoint title the backend currently has loaded.
func (c *Client) CurrentModel(ctx context.Context, target *relay.Target) (string, error) {
	var opts struct {
		SDModelCheckpoint string `json:"sd_model_checkpoint"`
	}
	if err := c.relay.GetJSON(ctx, target, optionsPath, &opts); err != nil {
		return "", err
	}
	return opts.SDModelCheckpoint, nil
}

// SetModel asks the backend to switch checkpoints. The web UI blocks until
// the model is loaded, which is why the relay layer carries no timeout.
func (c *Client) SetModel(ctx context.Context, target *relay.Target, title string) error {
	payload := map[string]string{"sd_model_checkpoint": title}
	return c.relay.PostJSON(ctx, target, optionsPath, payload, nil)
}

// GenerateParams is the txt2img payload. Fields mirror the backend API; the
// prompt fields are sanitized before submission.
type GenerateParams struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Sampler        string  `json:"sampler_name,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CfgScale       float64 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	HrUpscaler     string  `json:"hr_upscaler,omitempty"`
	HrScale        float64 `json:"hr_scale,omitempty"`
	EnableHr       bool    `json:"enable_hr,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Generate submits a txt2img job and returns the generated images as base64
// strings in backend order.
func (c *Client) Generate(ctx context.Context, target *relay.Target, params GenerateParams) ([]string, error) {
	params.Prompt = SanitizePrompt(params.Prompt)
	params.NegativePrompt = SanitizePrompt(params.NegativePrompt)
	var resp txt2imgResponse
	if err := c.relay.PostJSON(ctx, target, txt2imgPath, params, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}
