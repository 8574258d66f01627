package model

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Files a model directory may contain. At least one of model.onnx or
// rules.json must exist for the directory to be usable.
var hubFiles = []string{"model.onnx", "vocab.txt", "labels.json", "rules.json"}

// fetchModel downloads a model directory from the hub into destDir. Files
// the hub does not have are skipped; the download fails only when nothing
// loadable came back or the hub is unreachable. Files land in a staging
// directory first and are published with a single rename, so destDir either
// does not exist or holds a complete model.
func fetchModel(hubURL string, ref Ref, destDir, authToken string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	stageDir, err := os.MkdirTemp(parent, filepath.Base(destDir)+".part-")
	if err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	fetched := 0
	for _, name := range hubFiles {
		url := fmt.Sprintf("%s/%s/%s/%s", hubURL, ref.Path, ref.Revision, name)
		ok, err := fetchFile(url, filepath.Join(stageDir, name), authToken)
		if err != nil {
			return fmt.Errorf("fetching %s: %w (check connectivity to the model hub at %s)", name, err, hubURL)
		}
		if ok {
			fetched++
		}
	}
	if fetched == 0 {
		return fmt.Errorf("model %s not found on hub %s", ref, hubURL)
	}
	if err := os.Rename(stageDir, destDir); err != nil {
		// another process may have published the model first
		if _, statErr := os.Stat(destDir); statErr == nil {
			return nil
		}
		return fmt.Errorf("publishing model dir: %w", err)
	}
	return nil
}

func fetchFile(url, dest, authToken string) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("hub returned %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return false, err
	}
	return true, nil
}
