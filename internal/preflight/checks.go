package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sys/unix"

	"podmill/internal/config"
	"podmill/internal/docstore"
	"podmill/internal/ratelimit"
)

const (
	redisCheckTimeout  = 5 * time.Second
	brokerCheckTimeout = 5 * time.Second
)

// CheckDirectoryAccess verifies that the directory exists and is readable
// and writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAuthSecret verifies the API token secret is configured. Without it
// the HTTP API cannot verify a single request.
func CheckAuthSecret(secret string) Result {
	const name = "Auth token secret"
	if strings.TrimSpace(secret) == "" {
		return Result{Name: name, Detail: "jwt_secret missing (set auth.jwt_secret or PODMILL_JWT_SECRET)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckVendorKey verifies a vendor API key is present. Preflight does not
// spend vendor quota on probe calls; a bad key surfaces on the first job.
func CheckVendorKey(name, apiKey string) Result {
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	return Result{Name: name, Passed: true, Detail: "API key configured"}
}

// CheckRedis verifies the shared Redis instance is reachable.
func CheckRedis(ctx context.Context, cfg config.Redis) Result {
	const name = "Redis"

	if strings.TrimSpace(cfg.URL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	timeout := redisCheckTimeout
	if cfg.DialTimeout > 0 {
		timeout = time.Duration(cfg.DialTimeout) * time.Second
	}
	client, err := ratelimit.Connect(ctx, cfg.URL, timeout)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	_ = client.Close()
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckMongo verifies the document store is reachable.
func CheckMongo(ctx context.Context, cfg config.Mongo) Result {
	const name = "MongoDB"

	if strings.TrimSpace(cfg.URI) == "" {
		return Result{Name: name, Detail: "missing uri"}
	}
	timeout := 10 * time.Second
	if cfg.ConnectTimeout > 0 {
		timeout = time.Duration(cfg.ConnectTimeout) * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := docstore.Connect(checkCtx, cfg.URI)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	_ = client.Disconnect(context.Background())
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckBroker verifies the RabbitMQ broker is reachable. Only meaningful
// when pipeline.runner is "amqp".
func CheckBroker(cfg config.RabbitMQ) Result {
	const name = "RabbitMQ"

	if strings.TrimSpace(cfg.URL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(brokerCheckTimeout)})
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// summarizeDialError keeps connectivity failures on one readable line.
func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}
	return err.Error()
}
