package chainweb

import (
	"encoding/json"
	"strings"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type LocalOptions struct {
	SignatureVerification bool
	Preflight             bool
}

// DefaultLocalOptions is a full dry run: signatures checked and gas buy simulated.
func DefaultLocalOptions() LocalOptions {
	return LocalOptions{SignatureVerification: true, Preflight: true}
}

type PactResult struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

func (r PactResult) Success() bool { return r.Status == StatusSuccess }

// ErrorMessage extracts the ledger's message, falling back to the raw payload.
func (r PactResult) ErrorMessage() string {
	if len(r.Error) == 0 {
		if r.Status == "" {
			return "empty result"
		}
		return "status " + r.Status
	}
	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &structured); err == nil && structured.Message != "" {
		return structured.Message
	}
	return strings.TrimSpace(string(r.Error))
}

type Continuation struct {
	PactID          string          `json:"pactId"`
	Step            int             `json:"step"`
	StepCount       int             `json:"stepCount"`
	StepHasRollback bool            `json:"stepHasRollback"`
	Executed        *bool           `json:"executed"`
	Continuation    json.RawMessage `json:"continuation,omitempty"`
	Yield           json.RawMessage `json:"yield,omitempty"`
}

type CommandResult struct {
	ReqKey       string          `json:"reqKey"`
	TxID         *int64          `json:"txId"`
	Result       PactResult      `json:"result"`
	Gas          int64           `json:"gas"`
	Logs         string          `json:"logs,omitempty"`
	Continuation *Continuation   `json:"continuation"`
	MetaData     json.RawMessage `json:"metaData,omitempty"`
	Events       json.RawMessage `json:"events,omitempty"`
}

// Submission identifies a sent command for polling and proof requests.
type Submission struct {
	RequestKey string `json:"requestKey"`
	ChainID    string `json:"chainId"`
	NetworkID  string `json:"networkId"`
}

type preflightResponse struct {
	Result   *CommandResult  `json:"preflightResult"`
	Warnings json.RawMessage `json:"preflightWarnings"`
}
