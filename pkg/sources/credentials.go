package sources

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/crypto"
)

// Credentials are the user and password for one source.
type Credentials struct {
	User     string
	Password string
}

// CredentialProvider supplies credentials for a source.
type CredentialProvider interface {
	GetCredentials(source SourceConfig) (Credentials, error)
}

// EnvFileCredentials looks in the environment first (<NAME>_USER and
// <NAME>_PASSWORD) and then in the passwords file by password_ref.
// Passwords prefixed "enc:" are decrypted with the encryptor.
type EnvFileCredentials struct {
	passwords map[string]string
	encryptor *crypto.CredentialEncryptor
	getenv    func(string) string
}

// NewEnvFileCredentials creates the provider. encryptor may be nil when no
// credentials key is configured; sealed passwords then fail to resolve.
func NewEnvFileCredentials(passwords map[string]string, encryptor *crypto.CredentialEncryptor) *EnvFileCredentials {
	return &EnvFileCredentials{passwords: passwords, encryptor: encryptor, getenv: os.Getenv}
}

// EnvPrefix turns a source name into its environment variable prefix:
// upper case, with anything but letters and digits replaced by '_'.
func EnvPrefix(source string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, source)
}

func (p *EnvFileCredentials) GetCredentials(source SourceConfig) (Credentials, error) {
	prefix := EnvPrefix(source.Name)
	creds := Credentials{User: source.Username}
	if u := p.getenv(prefix + "_USER"); u != "" {
		creds.User = u
	}

	password := p.getenv(prefix + "_PASSWORD")
	if password == "" && source.PasswordRef != "" {
		var ok bool
		password, ok = p.passwords[source.PasswordRef]
		if !ok || password == "" {
			return Credentials{}, fmt.Errorf("%w: password not found for reference %q", apperrors.ErrMissingCredentials, source.PasswordRef)
		}
	}

	if crypto.IsSealed(password) {
		if p.encryptor == nil {
			return Credentials{}, fmt.Errorf("%w: password for %s is encrypted but no credentials key is set", apperrors.ErrMissingCredentials, source.Name)
		}
		plain, err := p.encryptor.Open(password)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %s", apperrors.ErrCredentialsKeyMismatch, source.Name)
		}
		password = plain
	}

	creds.Password = password
	return creds, nil
}

// HasPassword reports whether credentials for source can be resolved without
// decrypting anything. Used for configuration checks.
func (p *EnvFileCredentials) HasPassword(source SourceConfig) bool {
	if p.getenv(EnvPrefix(source.Name)+"_PASSWORD") != "" {
		return true
	}
	if source.PasswordRef == "" {
		return true
	}
	v, ok := p.passwords[source.PasswordRef]
	return ok && v != ""
}
