package signer

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/satsend/business/send/app"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecSigner_ReadsRequestAndReturnsHex(t *testing.T) {
	requireShell(t)
	s := NewExecSigner(logger.Nop(), "sh", "-c", `grep -q '"amount_sats":1000' && echo " 0200abcd "`)

	txHex, err := s.Sign(context.Background(), app.SignRequest{AmountSats: 1000})

	require.NoError(t, err)
	assert.Equal(t, "0200abcd", txHex)
}

func TestExecSigner_CommandFailure(t *testing.T) {
	requireShell(t)
	s := NewExecSigner(logger.Nop(), "sh", "-c", "cat >/dev/null; echo wallet locked >&2; exit 3")

	_, err := s.Sign(context.Background(), app.SignRequest{})

	require.Error(t, err)
	assert.Equal(t, apperror.KindSigningFailed, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "wallet locked")
}

func TestExecSigner_EmptyOutput(t *testing.T) {
	requireShell(t)
	s := NewExecSigner(logger.Nop(), "sh", "-c", "cat >/dev/null")

	_, err := s.Sign(context.Background(), app.SignRequest{})

	assert.True(t, apperror.HasCode(err, apperror.CodeSigningFailed))
}

func TestParseCommand(t *testing.T) {
	s, err := ParseCommand(logger.Nop(), "   ")
	require.NoError(t, err)
	_, err = s.Sign(context.Background(), app.SignRequest{})
	assert.True(t, apperror.HasCode(err, apperror.CodeSigningFailed))

	_, err = ParseCommand(logger.Nop(), "definitely-not-a-signer-binary --flag")
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationError))
}
