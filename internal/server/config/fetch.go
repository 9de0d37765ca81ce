package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	get "github.com/hashicorp/go-getter"
)

// Fetch downloads a single config file from src into dst. src may be any
// go-getter address (local path, http(s)://, git::, s3:: ...).
func Fetch(ctx context.Context, src, dst string) error {
	pwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	client := &get.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: get.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("fetch %s: %w", src, err)
	}
	return nil
}

// LoadSource loads a config from a local file, or fetches it into cacheDir first
// when src is not an existing local path.
func LoadSource(ctx context.Context, src, cacheDir string) (*Config, error) {
	if fi, err := os.Stat(src); err == nil && !fi.IsDir() {
		return Load(src)
	}
	dst := filepath.Join(cacheDir, "config.yaml")
	if err := Fetch(ctx, src, dst); err != nil {
		return nil, err
	}
	return Load(dst)
}
