package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramonsune/custodia-360-sub010/internal/client/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/cronsig"
)

const defaultCronHeader = "x-internal-cron"

var Jobs = []string{
	"compliance-guard",
	"onboarding-guard",
	"billing-reminders",
	"mailer-dispatch",
}

type JobReply struct {
	OK        bool     `json:"ok"`
	Processed int      `json:"processed"`
	Notes     []string `json:"notes"`
	Error     string   `json:"error"`
}

type InviteReply struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Client calls a Custodia server described by a stored profile.
type Client struct {
	Profiles domain.ProfileRepository
	HTTP     *http.Client
	Logger   *zerolog.Logger
	Now      func() time.Time
}

func (c *Client) RunJob(ctx context.Context, profileName, job string) (JobReply, error) {
	reply := JobReply{}
	p, err := c.Profiles.Get(profileName)
	if err != nil {
		return reply, fmt.Errorf("failed to get profile '%s': %w", profileName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(p, "/api/jobs/"+url.PathEscape(job)), nil)
	if err != nil {
		return reply, fmt.Errorf("failed to build request: %w", err)
	}
	header := p.CronHeader
	if header == "" {
		header = defaultCronHeader
	}
	req.Header.Set(header, "1")
	if p.Secret != "" {
		tok, err := cronsig.Sign([]byte(p.Secret), job, c.now(), cronsig.DefaultTTL)
		if err != nil {
			return reply, err
		}
		req.Header.Set(cronsig.Header, tok)
	}

	c.Logger.Info().
		Str("server", p.ServerURL).
		Str("job", job).
		Msg("running job")

	if err := c.do(req, &reply); err != nil {
		return reply, err
	}
	if !reply.OK {
		return reply, fmt.Errorf("job %s failed: %s", job, reply.Error)
	}
	return reply, nil
}

func (c *Client) InviteLink(ctx context.Context, profileName, entityID string) (InviteReply, error) {
	reply := InviteReply{}
	p, err := c.Profiles.Get(profileName)
	if err != nil {
		return reply, fmt.Errorf("failed to get profile '%s': %w", profileName, err)
	}

	q := url.Values{"entityId": {entityID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(p, "/api/invite-token?"+q.Encode()), nil)
	if err != nil {
		return reply, fmt.Errorf("failed to build request: %w", err)
	}
	if err := c.do(req, &reply); err != nil {
		return reply, err
	}
	if !reply.OK {
		return reply, fmt.Errorf("invite failed: %s", reply.Error)
	}
	return reply, nil
}

// do sends req and decodes the JSON body into out whatever the status;
// the server reports failures in the body.
func (c *Client) do(req *http.Request, out any) error {
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func endpoint(p domain.Profile, path string) string {
	return strings.TrimRight(p.ServerURL, "/") + path
}
