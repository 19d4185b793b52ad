package testinfra

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKey is a throwaway server identity for the test SFTP container.
type HostKey struct {
	PrivatePEM []byte
	Public     ssh.PublicKey
}

type HostKeyPaths struct {
	PrivateKey string
	KnownHosts string
}

func GenerateHostKey() (*HostKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "csvdelta-test-host")
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("convert public key: %w", err)
	}

	return &HostKey{PrivatePEM: pem.EncodeToMemory(block), Public: sshPub}, nil
}

// KnownHostsLine returns the known_hosts entry for addr ("host:port").
func (k *HostKey) KnownHostsLine(addr string) string {
	return knownhosts.Line([]string{knownhosts.Normalize(addr)}, k.Public)
}

// WriteToDir stores the private key and a known_hosts file trusting it at addrs.
func (k *HostKey) WriteToDir(dir string, addrs ...string) (*HostKeyPaths, error) {
	paths := &HostKeyPaths{
		PrivateKey: filepath.Join(dir, "ssh_host_ed25519_key"),
		KnownHosts: filepath.Join(dir, "known_hosts"),
	}

	if err := os.WriteFile(paths.PrivateKey, k.PrivatePEM, 0600); err != nil {
		return nil, fmt.Errorf("write %s: %w", paths.PrivateKey, err)
	}

	var lines []byte
	for _, addr := range addrs {
		lines = append(lines, k.KnownHostsLine(addr)...)
		lines = append(lines, '\n')
	}
	if err := os.WriteFile(paths.KnownHosts, lines, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", paths.KnownHosts, err)
	}

	return paths, nil
}
