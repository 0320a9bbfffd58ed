package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const k8sServiceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"

// SecretProvider is one source of configuration secrets. Providers are
// composed into a chain so the same binary runs unchanged on a laptop
// (env vars) and in a cluster (mounted secret files).
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)
	Name() string
	IsAvailable(ctx context.Context) bool
}

// EnvProvider reads secrets from environment variables. It is the
// terminal fallback and is always available.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

func (e *EnvProvider) Name() string { return "env" }

func (e *EnvProvider) IsAvailable(ctx context.Context) bool { return true }

// FileProvider reads secrets from a directory of mounted files, one
// secret per file, following the Kubernetes secret volume layout. The
// key CLAUDE_API_KEY maps to the file claude-api-key.
type FileProvider struct {
	dir string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.dir == "" {
		return "", fmt.Errorf("secrets directory not configured")
	}

	name := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if os.IsNotExist(err) {
		// Absent file is not an error; the chain moves on.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.dir == "" {
		return false
	}
	info, err := os.Stat(f.dir)
	return err == nil && info.IsDir()
}

// K8sProvider serves secrets when running inside a Kubernetes pod.
// Secrets arrive as mounted files, so reads delegate to a FileProvider;
// availability is gated on the pod's service account token.
type K8sProvider struct {
	files     *FileProvider
	namespace string
}

func NewK8sProvider(secretsDir, namespace string) *K8sProvider {
	if secretsDir == "" {
		secretsDir = "/var/secrets"
	}
	if namespace == "" {
		if ns, err := os.ReadFile(filepath.Join(k8sServiceAccountDir, "namespace")); err == nil {
			namespace = strings.TrimSpace(string(ns))
		} else {
			namespace = "default"
		}
	}
	return &K8sProvider{
		files:     NewFileProvider(secretsDir),
		namespace: namespace,
	}
}

func (k *K8sProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return k.files.GetSecret(ctx, key)
}

func (k *K8sProvider) Name() string { return "kubernetes" }

func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(k8sServiceAccountDir, "token")); err != nil {
		return false
	}
	return k.files.IsAvailable(ctx)
}

func (k *K8sProvider) GetNamespace() string { return k.namespace }

// ChainProvider tries providers in order and returns the first
// non-empty value. An empty value from one provider is treated as
// "not here", not as a final answer.
type ChainProvider struct {
	providers []SecretProvider
}

func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		value, err := p.GetSecret(ctx, key)
		if err != nil {
			lastErr = err
			continue
		}
		if value != "" {
			return value, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("no provider produced %s: %w", key, lastErr)
	}
	return "", fmt.Errorf("no available provider for key %s", key)
}

func (c *ChainProvider) Name() string { return "chain" }

func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}
