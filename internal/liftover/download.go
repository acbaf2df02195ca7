package liftover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/build"
)

// DefaultChainBaseURL is the UCSC download server.
const DefaultChainBaseURL = "https://hgdownload.soe.ucsc.edu/goldenPath"

// ChainFileName returns the UCSC file name for a pair, e.g. "hg19ToHg38.over.chain.gz".
func ChainFileName(pair build.Pair) string {
	target := string(pair.Target)
	if target != "" {
		target = strings.ToUpper(target[:1]) + target[1:]
	}
	return fmt.Sprintf("%sTo%s.over.chain.gz", pair.Source, target)
}

// ChainURL returns the download URL of the chain file for pair.
func ChainURL(baseURL string, pair build.Pair) string {
	return fmt.Sprintf("%s/%s/liftOver/%s", strings.TrimRight(baseURL, "/"), pair.Source, ChainFileName(pair))
}

// FileChainSource loads chain files from a directory, downloading missing
// files from UCSC on first use.
type FileChainSource struct {
	Dir     string
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewFileChainSource creates a chain source rooted at dir.
func NewFileChainSource(dir string) *FileChainSource {
	return &FileChainSource{
		Dir:     dir,
		BaseURL: DefaultChainBaseURL,
		Client: &http.Client{
			Timeout: 10 * time.Minute,
		},
		Logger: zap.NewNop(),
	}
}

// Path returns the local path of the chain file for pair.
func (s *FileChainSource) Path(pair build.Pair) string {
	return filepath.Join(s.Dir, ChainFileName(pair))
}

// Chain implements ChainSource.
func (s *FileChainSource) Chain(ctx context.Context, pair build.Pair) (*ChainMap, error) {
	path := s.Path(pair)
	if err := s.Fetch(ctx, pair); err != nil {
		return nil, err
	}

	m, err := LoadChainFile(path)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("loaded liftover chain",
		zap.String("pair", pair.String()),
		zap.String("path", path),
		zap.Int("chains", m.ChainCount()))
	return m, nil
}

// Fetch downloads the chain file for pair unless it is already present.
func (s *FileChainSource) Fetch(ctx context.Context, pair build.Pair) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create chain directory: %w", err)
	}
	return Download(ctx, s.Client, ChainURL(s.BaseURL, pair), s.Path(pair), s.Logger)
}

// Download downloads url to destPath through a temporary file.
// Existing files are left untouched.
func Download(ctx context.Context, client *http.Client, url, destPath string, logger *zap.Logger) error {
	if info, err := os.Stat(destPath); err == nil {
		logger.Debug("chain file already present",
			zap.String("path", destPath),
			zap.String("size", formatSize(info.Size())))
		return nil
	}

	logger.Info("downloading", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	logger.Info("download complete",
		zap.String("path", destPath),
		zap.String("size", formatSize(n)))
	return nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
