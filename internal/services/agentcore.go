package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
)

// AgentCoreAPI is the subset of the Bedrock AgentCore client used by AgentCore. It is satisfied by
// *bedrockagentcore.Client.
type AgentCoreAPI interface {
	InvokeAgentRuntime(
		ctx context.Context,
		params *bedrockagentcore.InvokeAgentRuntimeInput,
		optFns ...func(*bedrockagentcore.Options),
	) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// AgentCore invokes a managed agent runtime on Amazon Bedrock AgentCore.
type AgentCore struct {
	client    AgentCoreAPI
	arn       string
	qualifier string

	logger *slog.Logger
}

// DefaultQualifier is the runtime endpoint used when none is configured.
const DefaultQualifier = "DEFAULT"

var errNoRuntimeARN = errors.New("agent runtime ARN is required")

// NewAgentCore creates an AgentCore for the runtime identified by arn.
func NewAgentCore(client AgentCoreAPI, arn, qualifier string, logger *slog.Logger) (AgentCore, error) {
	if arn == "" {
		return AgentCore{}, errNoRuntimeARN
	}
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return AgentCore{
		client:    client,
		arn:       arn,
		qualifier: qualifier,
		logger:    logger.With(slog.String("module", "agentcore")),
	}, nil
}

// Invoke calls InvokeAgentRuntime and returns its response stream, which is nil when the runtime sent
// none.
func (a AgentCore) Invoke(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, error) {
	input := &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(a.arn),
		Qualifier:        aws.String(a.qualifier),
		RuntimeSessionId: aws.String(sessionID),
		Payload:          payload,
		Accept:           aws.String("text/event-stream"),
	}
	if json.Valid(payload) {
		input.ContentType = aws.String("application/json")
	}

	a.logger.Debug("Invoking AgentCore",
		slog.String("sessionID", sessionID),
		slog.String("qualifier", a.qualifier))

	out, err := a.client.InvokeAgentRuntime(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke agent runtime: %w", err)
	}
	if out == nil || out.Response == nil {
		return nil, nil
	}
	return out.Response, nil
}
