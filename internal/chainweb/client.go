// Package chainweb talks to the pact API of one chain of a chainweb network.
package chainweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/httpx"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const DefaultPollInterval = 2 * time.Second

// Factory hands out per-chain clients that share one transport.
type Factory struct {
	http         *httpx.Client
	network      id.Network
	host         string
	pollInterval time.Duration
	log          *logrus.Entry
}

type FactoryOption func(*Factory)

func WithHost(host string) FactoryOption {
	return func(f *Factory) { f.host = host }
}

func WithPollInterval(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

func WithLogger(log *logrus.Entry) FactoryOption {
	return func(f *Factory) {
		if log != nil {
			f.log = log
		}
	}
}

func NewFactory(httpClient *httpx.Client, network id.Network, opts ...FactoryOption) *Factory {
	f := &Factory{
		http:         httpClient,
		network:      network,
		pollInterval: DefaultPollInterval,
		log:          logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Network() id.Network { return f.network }

func (f *Factory) Client(chainID string) (*Client, error) {
	chain, err := id.ParseChainID(chainID)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:         f.http,
		network:      f.network,
		chainID:      chain,
		baseURL:      registry.ChainwebBaseURL(f.network, chain, f.host),
		pollInterval: f.pollInterval,
		log:          f.log.WithFields(logrus.Fields{"network": f.network, "chain": chain}),
	}, nil
}

type Client struct {
	http         *httpx.Client
	network      id.Network
	chainID      string
	baseURL      string
	pollInterval time.Duration
	log          *logrus.Entry
}

func (c *Client) ChainID() string { return c.chainID }

func (c *Client) BaseURL() string { return c.baseURL }

// Local executes tx without committing it.
func (c *Client) Local(ctx context.Context, tx pact.SignedTransaction, opts LocalOptions) (CommandResult, error) {
	url := fmt.Sprintf("%s/api/v1/local?signatureVerification=%s&preflight=%s",
		c.baseURL, strconv.FormatBool(opts.SignatureVerification), strconv.FormatBool(opts.Preflight))
	var raw json.RawMessage
	if err := httpx.PostJSON(ctx, c.http, url, tx, &raw); err != nil {
		if httpx.StatusCode(err) == http.StatusBadRequest {
			return CommandResult{}, clierr.Wrap(clierr.CodeDryRunRejected, "local validation rejected command", err)
		}
		return CommandResult{}, err
	}
	return decodeLocal(raw, opts.Preflight)
}

func decodeLocal(raw json.RawMessage, preflight bool) (CommandResult, error) {
	if preflight {
		var wrapped preflightResponse
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Result != nil {
			return *wrapped.Result, nil
		}
	}
	var out CommandResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return CommandResult{}, clierr.Wrap(clierr.CodeUnavailable, "decode local response", err)
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, tx pact.SignedTransaction) (Submission, error) {
	var resp struct {
		RequestKeys []string `json:"requestKeys"`
	}
	body := map[string]any{"cmds": []pact.SignedTransaction{tx}}
	if err := httpx.PostJSON(ctx, c.http, c.baseURL+"/api/v1/send", body, &resp); err != nil {
		return Submission{}, clierr.Wrap(clierr.CodeSubmission, "send command", err)
	}
	if len(resp.RequestKeys) == 0 || resp.RequestKeys[0] == "" {
		return Submission{}, clierr.New(clierr.CodeSubmission, "send returned no request key")
	}
	return Submission{RequestKey: resp.RequestKeys[0], ChainID: c.chainID, NetworkID: string(c.network)}, nil
}

// PollOne blocks until the command has a result or ctx ends. Transient
// transport failures are retried on the next tick.
func (c *Client) PollOne(ctx context.Context, sub Submission) (CommandResult, error) {
	body := map[string]any{"requestKeys": []string{sub.RequestKey}}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var resp map[string]CommandResult
		err := httpx.PostJSON(ctx, c.http, c.baseURL+"/api/v1/poll", body, &resp)
		switch {
		case err == nil:
			if result, ok := resp[sub.RequestKey]; ok {
				return result, nil
			}
		case clierr.IsRetryable(err):
			c.log.WithError(err).WithField("request_key", sub.RequestKey).Debug("poll failed, retrying")
		default:
			return CommandResult{}, err
		}
		select {
		case <-ctx.Done():
			return CommandResult{}, clierr.Wrap(clierr.CodeUnavailable, "poll stopped before result", ctx.Err())
		case <-ticker.C:
		}
	}
}

// PollCreateSPV waits until the source chain can prove sub to targetChain.
// The endpoint answers 400 until the target has seen enough depth.
func (c *Client) PollCreateSPV(ctx context.Context, sub Submission, targetChain string) (string, error) {
	body := map[string]string{"requestKey": sub.RequestKey, "targetChainId": targetChain}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		var proof string
		err := httpx.PostJSON(ctx, c.http, c.baseURL+"/spv", body, &proof)
		switch {
		case err == nil && proof != "":
			return proof, nil
		case err == nil:
			lastErr = fmt.Errorf("empty proof")
		case httpx.StatusCode(err) == http.StatusBadRequest || clierr.IsRetryable(err):
			lastErr = err
			c.log.WithError(err).WithField("request_key", sub.RequestKey).Debug("spv proof not ready")
		default:
			return "", clierr.Wrap(clierr.CodeProofUnavailable, "request spv proof", err)
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return "", clierr.Wrap(clierr.CodeProofUnavailable, "spv proof not available", lastErr)
		case <-ticker.C:
		}
	}
}
