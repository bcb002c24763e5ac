package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/errs"
	"github.com/ithan1985/audio2text/internal/transcribe"
)

// Key identifies one loaded model instance.
type Key struct {
	ModelID     string
	ComputeMode string
}

// Handle is a ready-to-use engine bound to cached model weights. Handles
// are created once per key and reused for every subsequent job in the
// process; callers must serialize decode calls on the engine.
type Handle struct {
	Key    Key
	Path   string
	Engine transcribe.Engine
}

// Manager resolves (model_id, compute_mode) pairs to engine handles,
// persisting fetched weights in a local cache directory that survives
// process restarts.
type Manager struct {
	cacheDir    string
	repoURL     string
	whisperPath string
	client      *http.Client
	log         zerolog.Logger

	mu      sync.Mutex
	handles map[Key]*Handle
}

func NewManager(cacheDir, repoURL, whisperPath string, log zerolog.Logger) *Manager {
	return &Manager{
		cacheDir:    cacheDir,
		repoURL:     repoURL,
		whisperPath: whisperPath,
		client:      &http.Client{}, // model downloads can take minutes, no client timeout
		log:         log,
	}
}

// Engine returns the handle for the given model and compute mode, loading
// and caching it on first request.
func (m *Manager) Engine(ctx context.Context, modelID, computeMode string) (*Handle, error) {
	if !KnownModel(modelID) {
		return nil, errs.New(errs.KindModelLoad, "unknown model_id %q", modelID)
	}
	if !KnownComputeMode(computeMode) {
		return nil, errs.New(errs.KindModelLoad, "unsupported compute_mode %q", computeMode)
	}
	key := Key{ModelID: modelID, ComputeMode: computeMode}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles == nil {
		m.handles = make(map[Key]*Handle)
	}
	if h, ok := m.handles[key]; ok {
		return h, nil
	}

	path, err := m.ensureLocal(ctx, key)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		Key:    key,
		Path:   path,
		Engine: transcribe.NewCLIEngine(m.whisperPath, path, modelID, computeMode, m.log),
	}
	m.handles[key] = h
	m.log.Info().Str("model", modelID).Str("compute_mode", computeMode).Str("path", path).Msg("model ready")
	return h, nil
}

// ensureLocal returns the on-disk weights path, fetching from the model
// repository on a cache miss. A zero-length cached file is treated as a
// corrupt download and re-fetched.
func (m *Manager) ensureLocal(ctx context.Context, key Key) (string, error) {
	name := FileName(key.ModelID, key.ComputeMode)
	path := filepath.Join(m.cacheDir, name)

	if info, err := os.Stat(path); err == nil {
		if info.Size() > 0 {
			m.log.Debug().Str("path", path).Msg("model cache hit")
			return path, nil
		}
		m.log.Warn().Str("path", path).Msg("zero-length cached model, re-fetching")
		os.Remove(path)
	}

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindModelLoad, "create cache dir", err)
	}

	url := m.repoURL + "/" + name
	m.log.Info().Str("url", url).Msg("fetching model weights")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindModelLoad, "build fetch request", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindModelLoad, "fetch "+name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errs.New(errs.KindModelLoad, "fetch %s: status %d", name, resp.StatusCode)
	}

	// Atomic write: temp file + rename, so an interrupted download never
	// leaves a half-written artifact under the final name.
	tmp, err := os.CreateTemp(m.cacheDir, ".model-*.tmp")
	if err != nil {
		return "", errs.Wrap(errs.KindModelLoad, "create temp", err)
	}
	tmpPath := tmp.Name()
	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errs.Wrap(errs.KindModelLoad, "download "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errs.Wrap(errs.KindModelLoad, "close temp", err)
	}
	if n == 0 {
		os.Remove(tmpPath)
		return "", errs.New(errs.KindModelLoad, "repository returned empty body for %s", name)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", errs.Wrap(errs.KindModelLoad, "persist "+name, err)
	}

	m.log.Info().Str("path", path).Str("size", fmt.Sprintf("%.1f MB", float64(n)/1e6)).Msg("model cached")
	return path, nil
}
