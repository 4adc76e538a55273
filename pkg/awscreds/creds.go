// Package awscreds resolves AWS credentials from a chain of providers, the
// way the environment variables consumed here mirror the credentials the
// teacher's own AWS4Authenticator checks requests against, just sourced on
// the client side instead of looked up from a server-side credential map.
package awscreds

import (
	"context"
	"os"
)

// Credentials is an immutable set of AWS access keys. SessionToken may be
// empty; when non-empty it is signed as x-amz-security-token.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Empty reports whether c carries no usable key pair.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" || c.SecretAccessKey == ""
}

// Provider resolves credentials on demand. Providers are free to cache or
// refresh internally; the caller (the Client in pkg/awsclient) calls Load
// on every request attempt and never caches the result itself, so that a
// provider backed by STS or IMDS can rotate credentials transparently.
type Provider interface {
	// Load returns credentials, or ok=false if this provider has none to
	// offer (not an error — the chain moves on to the next provider).
	Load(ctx context.Context) (creds Credentials, ok bool, err error)
	// Name identifies the provider for diagnostics.
	Name() string
}

// EnvironmentProvider reads AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, and
// AWS_SESSION_TOKEN from the process environment.
type EnvironmentProvider struct{}

// Name implements Provider.
func (EnvironmentProvider) Name() string { return "Environment" }

// Load implements Provider. It returns ok=false, without error, whenever
// either the access key ID or the secret access key is unset.
func (EnvironmentProvider) Load(_ context.Context) (Credentials, bool, error) {
	accessKeyID := os.Getenv("AWS_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKeyID == "" || secretAccessKey == "" {
		return Credentials{}, false, nil
	}
	return Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}, true, nil
}

// Chain tries each provider in order and returns the first that yields
// credentials. DefaultChain holds only EnvironmentProvider; callers plug in
// shared-config-file or EC2-IMDS providers by passing their own Provider
// implementations to NewChain.
type Chain struct {
	providers []Provider
}

// NewChain builds a Chain trying providers in the given order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// DefaultChain returns a chain of environment variables only. A Client
// does not fall back to it on its own; it must be passed to awsclient.New
// or s3.New like any other Provider.
func DefaultChain() *Chain {
	return NewChain(EnvironmentProvider{})
}

// Load implements Provider by delegating to the first provider in the
// chain that returns credentials. If none do, ok is false.
func (c *Chain) Load(ctx context.Context) (Credentials, bool, error) {
	for _, p := range c.providers {
		creds, ok, err := p.Load(ctx)
		if err != nil {
			return Credentials{}, false, err
		}
		if ok {
			return creds, true, nil
		}
	}
	return Credentials{}, false, nil
}

// Name implements Provider.
func (c *Chain) Name() string { return "Chain" }
