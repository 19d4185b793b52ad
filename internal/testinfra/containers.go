package testinfra

import (
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/ssh"
)

const (
	SFTPImage    = "atmoz/sftp:alpine"
	SFTPUser     = "reports"
	SFTPPassword = "reports"
	// SFTPRoot is the only directory the test user may write to.
	SFTPRoot = "upload"

	sftpPort           = "22/tcp"
	containerHostKey   = "/etc/ssh/ssh_host_ed25519_key"
	containerStartWait = 60 * time.Second
)

type SFTPContainer struct {
	testcontainers.Container
	Host    string
	Port    int
	HostKey *HostKey
}

// Address returns the mapped "host:port" of the SSH server.
func (c *SFTPContainer) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StartSFTP runs an SFTP server whose identity is key. keyPath must hold
// key.PrivatePEM on the host.
func StartSFTP(ctx context.Context, key *HostKey, keyPath string) (*SFTPContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        SFTPImage,
		ExposedPorts: []string{sftpPort},
		Cmd:          []string{fmt.Sprintf("%s:%s:::%s", SFTPUser, SFTPPassword, SFTPRoot)},
		Files: []testcontainers.ContainerFile{{
			HostFilePath:      keyPath,
			ContainerFilePath: containerHostKey,
			FileMode:          0600,
		}},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(sftpPort),
			wait.ForLog("Server listening on"),
		).WithDeadline(containerStartWait),
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start sftp: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mapped, err := ctr.MappedPort(ctx, sftpPort)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &SFTPContainer{Container: ctr, Host: host, Port: mapped.Int(), HostKey: key}, nil
}

// Seed uploads files (relative path -> content) below SFTPRoot, creating
// directories as needed.
func (c *SFTPContainer) Seed(files map[string]string) error {
	conn, err := ssh.Dial("tcp", c.Address(), &ssh.ClientConfig{
		User:            SFTPUser,
		Auth:            []ssh.AuthMethod{ssh.Password(SFTPPassword)},
		HostKeyCallback: ssh.FixedHostKey(c.HostKey.Public),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.Address(), err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("start sftp subsystem: %w", err)
	}
	defer client.Close()

	for name, content := range files {
		target := path.Join(SFTPRoot, name)
		if err := client.MkdirAll(path.Dir(target)); err != nil {
			return fmt.Errorf("mkdir %s: %w", path.Dir(target), err)
		}

		f, err := client.Create(target)
		if err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", target, err)
		}
	}
	return nil
}
