package execution

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/chainweb"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution/signer"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
)

// ChainClient is the part of the chain RPC a saga drives.
type ChainClient interface {
	Local(ctx context.Context, tx pact.SignedTransaction, opts chainweb.LocalOptions) (chainweb.CommandResult, error)
	Submit(ctx context.Context, tx pact.SignedTransaction) (chainweb.Submission, error)
	PollOne(ctx context.Context, sub chainweb.Submission) (chainweb.CommandResult, error)
	PollCreateSPV(ctx context.Context, sub chainweb.Submission, targetChain string) (string, error)
}

// ClientFactory returns a client bound to one chain of the configured network.
type ClientFactory func(chainID string) (ChainClient, error)

func ChainwebClients(f *chainweb.Factory) ClientFactory {
	return func(chainID string) (ChainClient, error) {
		return f.Client(chainID)
	}
}

// Stages names the saga states one prepared transaction passes through.
// An empty Built skips that transition.
type Stages struct {
	Built    State
	Signed   State
	Verified State
	// Rejected is the code for a non-success dry run.
	Rejected clierr.Code
}

var (
	SourceStages = Stages{
		Built:    StateBuilt,
		Signed:   StateSigned,
		Verified: StateLocallyVerified,
		Rejected: clierr.CodeDryRunRejected,
	}
	ContinuationStages = Stages{
		Signed:   StateContinuationSigned,
		Verified: StateContinuationVerified,
		Rejected: clierr.CodeContinuation,
	}
)

// Pipeline builds, signs and dry-runs commands for a saga.
type Pipeline struct {
	Builder *pact.Builder
	Signer  signer.Signer
	Log     *logrus.Entry
}

// Prepare returns a signed transaction that passed the local dry run on
// client. Any failure moves the saga to FAILED; nothing is submitted here.
func (p Pipeline) Prepare(ctx context.Context, saga *Saga, client ChainClient, spec pact.Spec, stepID string, stages Stages) (pact.SignedTransaction, error) {
	unsigned, err := p.Builder.Build(spec)
	if err != nil {
		return pact.SignedTransaction{}, saga.Fail(ctx, err)
	}
	if stages.Built != "" {
		if err := saga.Advance(ctx, stages.Built); err != nil {
			return pact.SignedTransaction{}, saga.Fail(ctx, err)
		}
	}

	signed, err := p.Signer.Sign(unsigned)
	if err != nil {
		return pact.SignedTransaction{}, saga.Fail(ctx, clierr.Wrap(clierr.CodeSigner, "sign command", err))
	}
	if err := signer.Verify(signed); err != nil {
		return pact.SignedTransaction{}, saga.Fail(ctx, clierr.Wrap(clierr.CodeSigner, "signed command failed verification", err))
	}
	if err := saga.Advance(ctx, stages.Signed); err != nil {
		return pact.SignedTransaction{}, saga.Fail(ctx, err)
	}

	res, err := client.Local(ctx, signed, chainweb.DefaultLocalOptions())
	if err != nil {
		if stages.Rejected == clierr.CodeContinuation && !clierr.HasCode(err, clierr.CodeContinuation) {
			err = clierr.Wrap(clierr.CodeContinuation, "continuation dry run", err)
		}
		return pact.SignedTransaction{}, saga.Fail(ctx, err)
	}
	if !res.Result.Success() {
		return pact.SignedTransaction{}, saga.Fail(ctx, clierr.New(stages.Rejected, "local dry run rejected: "+res.Result.ErrorMessage()))
	}
	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{"chain": spec.ChainID, "hash": signed.Hash, "gas": res.Gas}).Debug("dry run passed")
	}
	saga.Mutate(func(a *Action) {
		if step := a.Step(stepID); step != nil {
			step.Status = StepStatusVerified
		}
	})
	if err := saga.Advance(ctx, stages.Verified); err != nil {
		return pact.SignedTransaction{}, saga.Fail(ctx, err)
	}
	return signed, nil
}

// Submit sends a prepared transaction and records its request key on the step.
func (p Pipeline) Submit(ctx context.Context, saga *Saga, client ChainClient, tx pact.SignedTransaction, stepID string, failCode clierr.Code) (chainweb.Submission, error) {
	if !signer.IsSignedTransaction(tx) {
		return chainweb.Submission{}, saga.Fail(ctx, clierr.New(clierr.CodeSigner, "refusing to submit an unsigned command"))
	}
	sub, err := client.Submit(ctx, tx)
	if err != nil {
		if !clierr.HasCode(err, failCode) {
			err = clierr.Wrap(failCode, "submit command", err)
		}
		return chainweb.Submission{}, saga.Fail(ctx, err)
	}
	saga.Mutate(func(a *Action) {
		if step := a.Step(stepID); step != nil {
			step.Status = StepStatusSubmitted
			step.RequestKey = sub.RequestKey
		}
		if a.RequestKey == "" {
			a.RequestKey = sub.RequestKey
		}
	})
	return sub, nil
}
