package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	fontRegularAsset  = "fonts/Sora-Regular.ttf"
	fontSemiBoldAsset = "fonts/Sora-SemiBold.ttf"
)

// AssetSource loads templates and fonts by slash-separated name,
// e.g. "certificates/certificate1.pdf".
type AssetSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// AssetError reports a template or font that could not be loaded.
type AssetError struct {
	Name string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("failed to fetch asset %s: %v", e.Name, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// DirAssets reads assets from a local directory such as ./public.
type DirAssets struct {
	Root string
}

func (d DirAssets) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	return os.ReadFile(filepath.Join(d.Root, clean))
}

// HTTPAssets downloads assets relative to a base URL, e.g. a CDN.
type HTTPAssets struct {
	client *resty.Client
}

func NewHTTPAssets(baseURL string) *HTTPAssets {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15 * time.Second)
	return &HTTPAssets{client: client}
}

func (h *HTTPAssets) Fetch(ctx context.Context, name string) ([]byte, error) {
	resp, err := h.client.R().SetContext(ctx).Get("/" + strings.TrimLeft(name, "/"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: %s", name, resp.Status())
	}
	return resp.Body(), nil
}

// MapAssets serves assets held in memory.
type MapAssets map[string][]byte

func (m MapAssets) Fetch(_ context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}
