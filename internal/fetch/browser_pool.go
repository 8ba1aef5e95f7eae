package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"stockwatch/internal/model"
)

const (
	browserContainerPrefix = "stockwatch-render-"
	labelManaged           = "stockwatch.render.managed"
	renderImage             = "browserless/chrome:latest"
	renderPort              = "3000/tcp"
)

// RenderError mirrors the teacher's RuntimeError shape: an operation name,
// the underlying error and whether retrying is worthwhile.
type RenderError struct {
	Operation string
	Err       error
	Retryable bool
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("fetch: render %s failed: %v", e.Operation, e.Err)
}
func (e *RenderError) Unwrap() error { return e.Err }

// BrowserPool leases a bounded number of headless-browser containers to
// render pages whose stock state only appears after JS execution (§4.3,
// §5: "bounded render-backend concurrency"). Each lease is a fresh
// container, torn down on release, so no cross-request state or cookies
// survive between renders.
type BrowserPool struct {
	docker *client.Client
	sem    *semaphore.Weighted
	log    *zap.Logger
}

// NewBrowserPool connects to the local Docker daemon and bounds concurrent
// renders to maxBrowsers.
func NewBrowserPool(maxBrowsers int, log *zap.Logger) (*BrowserPool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("fetch: create docker client: %w", err)
	}
	return &BrowserPool{
		docker: cli,
		sem:    semaphore.NewWeighted(int64(maxBrowsers)),
		log:    log,
	}, nil
}

// Render leases a browser container, navigates to targetURL and returns the
// fully-rendered DOM. The lease is released (and the container removed)
// before Render returns, success or failure.
func (p *BrowserPool) Render(ctx context.Context, targetURL string) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, &RenderError{Operation: "Acquire", Err: err, Retryable: true}
	}
	defer p.sem.Release(1)

	containerID, hostPort, err := p.startContainer(ctx)
	if err != nil {
		return Result{}, err
	}
	defer p.removeContainer(containerID)

	start := time.Now()
	body, statusCode, err := p.fetchRendered(ctx, hostPort, targetURL)
	latency := time.Since(start)
	if err != nil {
		return Result{}, &RenderError{Operation: "Render", Err: err, Retryable: true}
	}

	return Result{
		FinalURL:   targetURL,
		StatusCode: statusCode,
		Body:       body,
		Headers:    http.Header{},
		LatencyMS:  latency.Milliseconds(),
		Rendered:   true,
	}, nil
}

func (p *BrowserPool) startContainer(ctx context.Context) (containerID, hostPort string, err error) {
	if err := p.pullImageIfMissing(ctx); err != nil {
		return "", "", &RenderError{Operation: "StartContainer", Err: err, Retryable: true}
	}

	portSet, portBindings, err := nat.ParsePortSpecs([]string{renderPort})
	if err != nil {
		return "", "", &RenderError{Operation: "StartContainer", Err: err, Retryable: false}
	}

	resp, err := p.docker.ContainerCreate(ctx,
		&container.Config{
			Image:        renderImage,
			ExposedPorts: portSet,
			Labels:       map[string]string{labelManaged: "true"},
		},
		&container.HostConfig{
			PortBindings: portBindings,
			AutoRemove:   false,
		},
		&network.NetworkingConfig{},
		nil,
		fmt.Sprintf("%s%d", browserContainerPrefix, time.Now().UnixNano()),
	)
	if err != nil {
		return "", "", &RenderError{Operation: "StartContainer", Err: err, Retryable: true}
	}

	if err := p.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", "", &RenderError{Operation: "StartContainer", Err: err, Retryable: true}
	}

	inspect, err := p.docker.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.removeContainer(resp.ID)
		return "", "", &RenderError{Operation: "StartContainer", Err: err, Retryable: true}
	}

	bindings := inspect.NetworkSettings.Ports[nat.Port(renderPort)]
	if len(bindings) == 0 {
		p.removeContainer(resp.ID)
		return "", "", &RenderError{Operation: "StartContainer", Err: fmt.Errorf("no published port for %s", renderPort), Retryable: true}
	}

	return resp.ID, bindings[0].HostPort, nil
}

func (p *BrowserPool) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		p.log.Warn("fetch: failed to remove render container", zap.String("container_id", containerID), zap.Error(err))
	}
}

func (p *BrowserPool) pullImageIfMissing(ctx context.Context) error {
	_, _, err := p.docker.ImageInspectWithRaw(ctx, renderImage)
	if err == nil {
		return nil
	}
	reader, err := p.docker.ImagePull(ctx, renderImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull render image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// fetchRendered asks the leased browserless/chrome instance to navigate to
// targetURL and return the rendered HTML via its /content endpoint.
func (p *BrowserPool) fetchRendered(ctx context.Context, hostPort, targetURL string) ([]byte, int, error) {
	payload := fmt.Sprintf(`{"url":%q,"waitFor":1000}`, targetURL)
	endpoint := fmt.Sprintf("http://localhost:%s/content", hostPort)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read render response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Close releases the Docker client connection.
func (p *BrowserPool) Close() error {
	return p.docker.Close()
}

// EligibleForRender decides whether item's history justifies paying the
// render cost: it returns true when lastStatus is inconclusive or the item
// has two or more consecutive errors. The poller passes the committed
// status, which the store never sets to inconclusive, so in practice the
// error streak decides (§4.3's render-as-fallback policy).
func EligibleForRender(lastStatus model.Status, consecutiveErrors int) bool {
	return lastStatus == model.StatusInconclusive || consecutiveErrors >= 2
}
