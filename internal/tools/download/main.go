// Command download fetches an engine build, such as the viz wasm module
// used by the wasm backend and its tests:
//
//	go run ./internal/tools/download [-sha256 HEX] <url> <output>
//
// An existing output is kept unless its checksum does not match.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

func main() {
	sum := flag.String("sha256", "", "expected SHA-256 of the download")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: download [-sha256 HEX] <url> <output>")
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "download"})
	url, output := flag.Arg(0), flag.Arg(1)

	if ok, err := upToDate(output, *sum); err != nil {
		logger.Fatal("check existing file", "path", output, "err", err)
	} else if ok {
		logger.Debug("already present", "path", output)
		return
	}

	start := time.Now()
	n, err := fetch(url, output, *sum)
	if err != nil {
		logger.Fatal("download failed", "url", url, "err", err)
	}
	logger.Info("downloaded", "path", output, "bytes", n, "duration", time.Since(start).Round(time.Millisecond))
}

func upToDate(path, want string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if want == "" {
		return true, nil
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == want, nil
}

// fetch writes the body of url to output through a temporary file so an
// interrupted download never leaves a truncated module behind.
func fetch(url, output, want string) (int64, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}

	if got := hex.EncodeToString(h.Sum(nil)); want != "" && got != want {
		return 0, fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return n, os.Rename(tmp.Name(), output)
}
