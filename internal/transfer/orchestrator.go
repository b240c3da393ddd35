// Package transfer runs single-chain transfers and the cross-chain transfer saga.
package transfer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/chainweb"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/execution/signer"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const (
	stepTransfer     = "transfer"
	stepXChainInit   = "xchain-init"
	stepContinuation = "xchain-continuation"
)

type Config struct {
	Network      id.Network
	DefaultChain string
	Builder      *pact.Builder
	Signer       signer.Signer
	Clients      execution.ClientFactory
	Recorder     execution.Recorder
	Hooks        []execution.TransitionHook
	// ConfirmTimeout and ProofTimeout bound the two polling steps; zero waits
	// until ctx is done.
	ConfirmTimeout time.Duration
	ProofTimeout   time.Duration
	Logger         *logrus.Entry
}

type Orchestrator struct {
	cfg      Config
	pipeline execution.Pipeline
	log      *logrus.Entry
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Builder == nil || cfg.Signer == nil || cfg.Clients == nil {
		return nil, clierr.New(clierr.CodeInternal, "transfer orchestrator requires a builder, a signer and a client factory")
	}
	if _, err := id.ParseNetwork(string(cfg.Network)); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		cfg:      cfg,
		pipeline: execution.Pipeline{Builder: cfg.Builder, Signer: cfg.Signer, Log: log},
		log:      log,
	}, nil
}

// Transfer validates req and runs it to a terminal state. Invalid requests
// return before any client is created.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (Result, error) {
	v, err := req.Validate(o.cfg.DefaultChain)
	if err != nil {
		return Result{}, err
	}

	// The capability probe is a read; a failure here leaves no saga behind.
	var xchain bool
	if v.CrossChain() {
		probeClient, err := o.cfg.Clients(registry.QueryChainID)
		if err != nil {
			return Result{}, err
		}
		if xchain, err = SupportsXChain(ctx, o.cfg.Builder, probeClient, id.CoinModule); err != nil {
			return Result{}, err
		}
	}

	action := execution.NewAction(execution.NewActionID(), execution.IntentTransfer, string(o.cfg.Network), v.FromChain)
	action.Provider = id.CoinModule
	action.FromAccount = o.cfg.Signer.Account()
	action.ToAccount = v.Recipient
	action.InputAmount = id.FormatAmount(v.Amount)
	action.TargetChainID = v.ToChain

	opts := []execution.SagaOption{execution.WithLogger(o.log)}
	if o.cfg.Recorder != nil {
		opts = append(opts, execution.WithRecorder(o.cfg.Recorder))
	}
	for _, hook := range o.cfg.Hooks {
		opts = append(opts, execution.WithHook(hook))
	}
	saga := execution.NewSaga(action, v.CrossChain(), opts...)

	var requestKey string
	if v.CrossChain() {
		requestKey, err = o.crossChain(ctx, saga, v, xchain)
	} else {
		requestKey, err = o.singleChain(ctx, saga, v)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success:     true,
		RequestKey:  requestKey,
		Amount:      id.FormatAmount(v.Amount),
		FromChain:   v.FromChain,
		ToChain:     v.ToChain,
		ExplorerURL: registry.ExplorerTxURL(o.cfg.Network, requestKey),
		ActionID:    saga.Action().ActionID,
	}, nil
}

func (o *Orchestrator) singleChain(ctx context.Context, saga *execution.Saga, v Validated) (string, error) {
	saga.Mutate(func(a *execution.Action) {
		a.AddStep(execution.ActionStep{
			StepID:      stepTransfer,
			Type:        execution.StepTypeTransfer,
			ChainID:     v.FromChain,
			Description: "transfer " + id.FormatAmount(v.Amount) + " KDA to " + v.Recipient,
		})
	})
	client, err := o.cfg.Clients(v.FromChain)
	if err != nil {
		return "", saga.Fail(ctx, err)
	}
	spec := pact.Transfer(pact.TransferParams{
		Account:   o.cfg.Signer.Account(),
		PublicKey: o.cfg.Signer.PublicKey(),
		Recipient: v.Recipient,
		Amount:    v.Amount,
		ChainID:   v.FromChain,
	})
	signed, err := o.pipeline.Prepare(ctx, saga, client, spec, stepTransfer, execution.SourceStages)
	if err != nil {
		return "", err
	}
	sub, err := o.pipeline.Submit(ctx, saga, client, signed, stepTransfer, clierr.CodeSubmission)
	if err != nil {
		return "", err
	}
	if err := saga.Advance(ctx, execution.StateSubmitted); err != nil {
		return "", saga.Fail(ctx, err)
	}
	return sub.RequestKey, nil
}

func (o *Orchestrator) crossChain(ctx context.Context, saga *execution.Saga, v Validated, xchain bool) (string, error) {
	saga.Mutate(func(a *execution.Action) {
		a.AddStep(execution.ActionStep{
			StepID:      stepXChainInit,
			Type:        execution.StepTypeXChainInit,
			ChainID:     v.FromChain,
			Description: "lock " + id.FormatAmount(v.Amount) + " KDA for chain " + v.ToChain,
		})
		a.AddStep(execution.ActionStep{
			StepID:      stepContinuation,
			Type:        execution.StepTypeContinuation,
			ChainID:     v.ToChain,
			Description: "complete transfer to " + v.Recipient + " on chain " + v.ToChain,
		})
		if a.Metadata == nil {
			a.Metadata = map[string]string{}
		}
		a.Metadata["xchain_capability"] = strconv.FormatBool(xchain)
	})

	source, err := o.cfg.Clients(v.FromChain)
	if err != nil {
		return "", saga.Fail(ctx, err)
	}
	target, err := o.cfg.Clients(v.ToChain)
	if err != nil {
		return "", saga.Fail(ctx, err)
	}

	spec := pact.CrossChainTransfer(pact.CrossChainParams{
		Account:          o.cfg.Signer.Account(),
		PublicKey:        o.cfg.Signer.PublicKey(),
		Recipient:        v.Recipient,
		Amount:           v.Amount,
		SourceChain:      v.FromChain,
		TargetChain:      v.ToChain,
		XChainCapability: xchain,
	})
	signed, err := o.pipeline.Prepare(ctx, saga, source, spec, stepXChainInit, execution.SourceStages)
	if err != nil {
		return "", err
	}
	sub, err := o.pipeline.Submit(ctx, saga, source, signed, stepXChainInit, clierr.CodeSubmission)
	if err != nil {
		return "", err
	}
	if err := saga.Advance(ctx, execution.StateSubmitted); err != nil {
		return "", saga.Fail(ctx, err)
	}

	pactID, err := o.awaitSource(ctx, source, sub)
	if err != nil {
		return "", saga.Fail(ctx, err)
	}
	saga.Mutate(func(a *execution.Action) {
		step := a.Step(stepXChainInit)
		step.Status = execution.StepStatusConfirmed
		step.PactID = pactID
		a.Metadata["pact_id"] = pactID
	})
	if err := saga.Advance(ctx, execution.StateSourceConfirmed); err != nil {
		return "", saga.Fail(ctx, err)
	}

	proof, err := o.fetchProof(ctx, source, sub, v.ToChain)
	if err != nil {
		return "", saga.Fail(ctx, err)
	}
	if err := saga.Advance(ctx, execution.StateProofObtained); err != nil {
		return "", saga.Fail(ctx, err)
	}

	contSpec := pact.Continuation(pact.ContinuationParams{
		PublicKey:   o.cfg.Signer.PublicKey(),
		PactID:      pactID,
		Proof:       proof,
		TargetChain: v.ToChain,
	})
	contSigned, err := o.pipeline.Prepare(ctx, saga, target, contSpec, stepContinuation, execution.ContinuationStages)
	if err != nil {
		return "", err
	}
	contSub, err := o.pipeline.Submit(ctx, saga, target, contSigned, stepContinuation, clierr.CodeContinuation)
	if err != nil {
		return "", err
	}
	saga.Mutate(func(a *execution.Action) {
		a.Metadata["continuation_request_key"] = contSub.RequestKey
	})
	if err := saga.Advance(ctx, execution.StateContinuationSubmitted); err != nil {
		return "", saga.Fail(ctx, err)
	}
	return sub.RequestKey, nil
}

// awaitSource waits for the step-0 result and returns its pact id.
func (o *Orchestrator) awaitSource(ctx context.Context, source execution.ChainClient, sub chainweb.Submission) (string, error) {
	pollCtx, cancel := withOptionalTimeout(ctx, o.cfg.ConfirmTimeout)
	defer cancel()
	res, err := source.PollOne(pollCtx, sub)
	if err != nil {
		// Without a result the step-0 outcome is unknown and it may still land.
		if pollCtx.Err() != nil {
			return "", clierr.Wrap(clierr.CodeUnavailable, "no source chain result for "+sub.RequestKey+" before the wait ended; poll it again later", err)
		}
		return "", clierr.Wrap(clierr.CodeSourceConfirmation, "wait for source chain result of "+sub.RequestKey, err)
	}
	if !res.Result.Success() {
		return "", clierr.New(clierr.CodeSourceConfirmation, "source chain transaction failed: "+res.Result.ErrorMessage())
	}
	if res.Continuation == nil || res.Continuation.PactID == "" {
		return "", clierr.New(clierr.CodeSourceConfirmation, "source chain result carries no pact id")
	}
	return res.Continuation.PactID, nil
}

func (o *Orchestrator) fetchProof(ctx context.Context, source execution.ChainClient, sub chainweb.Submission, targetChain string) (string, error) {
	proofCtx, cancel := withOptionalTimeout(ctx, o.cfg.ProofTimeout)
	defer cancel()
	proof, err := source.PollCreateSPV(proofCtx, sub, targetChain)
	if err != nil {
		if clierr.HasCode(err, clierr.CodeProofUnavailable) {
			return "", err
		}
		return "", clierr.Wrap(clierr.CodeProofUnavailable, "spv proof for "+sub.RequestKey, err)
	}
	if proof == "" {
		return "", clierr.New(clierr.CodeProofUnavailable, "spv endpoint returned an empty proof")
	}
	return proof, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SupportsXChain asks whether token implements fungible-xchain-v1. The probe
// is unsigned and runs without signature checks or preflight.
func SupportsXChain(ctx context.Context, builder *pact.Builder, client execution.ChainClient, token string) (bool, error) {
	unsigned, err := builder.Build(pact.InterfaceProbe(token))
	if err != nil {
		return false, err
	}
	res, err := client.Local(ctx, unsigned.Unsigned(), chainweb.LocalOptions{})
	if err != nil {
		return false, err
	}
	if !res.Result.Success() {
		return false, nil
	}
	var interfaces []string
	if err := json.Unmarshal(res.Result.Data, &interfaces); err != nil {
		return false, nil
	}
	for _, name := range interfaces {
		if name == registry.XChainInterface {
			return true, nil
		}
	}
	return false, nil
}
