package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/crypto"
)

func providerWithEnv(passwords map[string]string, enc *crypto.CredentialEncryptor, env map[string]string) *EnvFileCredentials {
	p := NewEnvFileCredentials(passwords, enc)
	p.getenv = func(k string) string { return env[k] }
	return p
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "LINE_A", EnvPrefix("line_a"))
	assert.Equal(t, "LINE_2_EAST", EnvPrefix("line-2.east"))
}

func TestGetCredentials_EnvironmentWins(t *testing.T) {
	p := providerWithEnv(
		map[string]string{"line_a_password": "from-file"},
		nil,
		map[string]string{"LINE_A_USER": "env-user", "LINE_A_PASSWORD": "env-pass"},
	)

	creds, err := p.GetCredentials(SourceConfig{Name: "line_a", Username: "cfg-user", PasswordRef: "line_a_password"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{User: "env-user", Password: "env-pass"}, creds)
}

func TestGetCredentials_PasswordFileByRef(t *testing.T) {
	p := providerWithEnv(map[string]string{"line_a_password": "s3cret"}, nil, nil)

	creds, err := p.GetCredentials(SourceConfig{Name: "line_a", Username: "reader", PasswordRef: "line_a_password"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{User: "reader", Password: "s3cret"}, creds)
}

func TestGetCredentials_MissingReference(t *testing.T) {
	p := providerWithEnv(map[string]string{}, nil, nil)

	_, err := p.GetCredentials(SourceConfig{Name: "line_b", Username: "reader", PasswordRef: "line_b_password"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "line_b_password")
	assert.False(t, p.HasPassword(SourceConfig{Name: "line_b", PasswordRef: "line_b_password"}))
}

func TestGetCredentials_NoReferenceMeansEmptyPassword(t *testing.T) {
	p := providerWithEnv(nil, nil, nil)

	creds, err := p.GetCredentials(SourceConfig{Name: "line_c", Username: "reader"})
	require.NoError(t, err)
	assert.Equal(t, "", creds.Password)
	assert.True(t, p.HasPassword(SourceConfig{Name: "line_c"}))
}

func TestGetCredentials_SealedPassword(t *testing.T) {
	enc, err := crypto.NewCredentialEncryptor("test-key")
	require.NoError(t, err)
	sealed, err := enc.Seal("plain-pw")
	require.NoError(t, err)

	p := providerWithEnv(map[string]string{"ref": sealed}, enc, nil)
	creds, err := p.GetCredentials(SourceConfig{Name: "line_a", PasswordRef: "ref"})
	require.NoError(t, err)
	assert.Equal(t, "plain-pw", creds.Password)

	other, err := crypto.NewCredentialEncryptor("another-key")
	require.NoError(t, err)
	_, err = providerWithEnv(map[string]string{"ref": sealed}, other, nil).GetCredentials(SourceConfig{Name: "line_a", PasswordRef: "ref"})
	assert.ErrorIs(t, err, apperrors.ErrCredentialsKeyMismatch)

	_, err = providerWithEnv(map[string]string{"ref": sealed}, nil, nil).GetCredentials(SourceConfig{Name: "line_a", PasswordRef: "ref"})
	assert.ErrorIs(t, err, apperrors.ErrMissingCredentials)
}
