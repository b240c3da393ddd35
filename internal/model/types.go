package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Command   string         `json:"command"`
	Network   string         `json:"network,omitempty"`
	Sources   []SourceStatus `json:"sources,omitempty"`
	Cache     CacheStatus    `json:"cache"`
}

// SourceStatus reports one upstream (chainweb node or indexer) touched by a command.
type SourceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

// ActionSummary is the compact row printed by `actions list`.
type ActionSummary struct {
	ActionID      string `json:"action_id"`
	IntentType    string `json:"intent_type"`
	State         string `json:"state"`
	Status        string `json:"status"`
	Network       string `json:"network"`
	ChainID       string `json:"chain_id"`
	TargetChainID string `json:"target_chain_id,omitempty"`
	RequestKey    string `json:"request_key,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}
