// Package signer provides Signer implementations that keep keys outside
// this process.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/fd1az/satsend/business/send/app"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

// ExecSigner runs an external command per transaction. The SignRequest is
// written to stdin as JSON; the command prints the signed transaction hex.
type ExecSigner struct {
	path   string
	args   []string
	logger logger.LoggerInterface
}

// NewExecSigner creates an ExecSigner for name with args.
func NewExecSigner(log logger.LoggerInterface, name string, args ...string) *ExecSigner {
	return &ExecSigner{path: name, args: args, logger: log}
}

// ParseCommand splits a configured command line on whitespace.
func ParseCommand(log logger.LoggerInterface, commandLine string) (app.Signer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return Unavailable{}, nil
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("signer command "+fields[0]), apperror.WithCause(err))
	}
	return NewExecSigner(log, fields[0], fields[1:]...), nil
}

// Sign implements app.Signer.
func (s *ExecSigner) Sign(ctx context.Context, req app.SignRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn(ctx, "signer command failed", "command", s.path, "error", err)
		return "", apperror.New(apperror.CodeSigningFailed,
			apperror.WithContext(strings.TrimSpace(stderr.String())),
			apperror.WithCause(err))
	}

	txHex := strings.TrimSpace(stdout.String())
	if txHex == "" {
		return "", apperror.New(apperror.CodeSigningFailed, apperror.WithContext("signer produced no output"))
	}
	return txHex, nil
}

// Unavailable is used when no signer is configured. Live sends fail at the
// signing stage; simulated sends never call it.
type Unavailable struct{}

// Sign implements app.Signer.
func (Unavailable) Sign(context.Context, app.SignRequest) (string, error) {
	return "", apperror.New(apperror.CodeSigningFailed, apperror.WithContext("no signer configured"))
}
