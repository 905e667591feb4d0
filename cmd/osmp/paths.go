package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	envPackOutDir = "OSMP_PACK_OUT_DIR"
	envContainer  = "OSMP_CONTAINER"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolvePackOut picks the output path for pack. Without -o the container is
// named after the metadata directory and placed in $OSMP_PACK_OUT_DIR or
// ./out.
func resolvePackOut(metaDir, outFlag string) (string, bool, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag != "" {
		outPath := filepath.Clean(outFlag)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return "", false, err
		}
		return outPath, false, nil
	}

	if strings.TrimSpace(metaDir) == "" {
		return "", true, errors.New("--output is required when no metadata directory is given")
	}
	base := filepath.Base(filepath.Clean(metaDir))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", true, fmt.Errorf("invalid metadata directory: %q", metaDir)
	}

	outDir := strings.TrimSpace(os.Getenv(envPackOutDir))
	if outDir == "" {
		outDir = filepath.Join(".", "out")
	}

	outPath := filepath.Join(outDir, base+".osmp")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", true, err
	}
	return outPath, true, nil
}

// resolveContainerPath returns the container a command should open. The
// path comes from -f, then $OSMP_CONTAINER. A directory is searched for
// .osmp files; several candidates are offered for selection when stdin is a
// terminal.
func resolveContainerPath(fileFlag string, stdin io.Reader, stderr io.Writer) (string, error) {
	path := strings.TrimSpace(fileFlag)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envContainer))
	}
	if path == "" {
		return "", fmt.Errorf("--file is required unless %s is set", envContainer)
	}
	path = filepath.Clean(path)

	st, err := os.Stat(path)
	if err != nil || !st.IsDir() {
		// Missing files are reported by the mount with the container error.
		return path, nil
	}

	found, err := discoverContainers(path)
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no .osmp containers found in %s", path)
	case 1:
		_, _ = fmt.Fprintf(stderr, "osmp: using container %s\n", found[0])
		return found[0], nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple containers found in %s but stdin is not interactive; set --file",
				path,
			)
		}
		return selectContainerInteractively(path, found, stdin, stderr)
	}
}

func discoverContainers(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("container directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("container path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	found := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".osmp") {
			continue
		}
		found = append(found, filepath.Join(dir, name))
	}
	sort.Strings(found)
	return found, nil
}

func selectContainerInteractively(dir string, found []string, stdin io.Reader, stderr io.Writer) (string, error) {
	if len(found) == 0 {
		return "", fmt.Errorf("no containers available in %s", dir)
	}

	_, _ = fmt.Fprintf(stderr, "osmp: select a container from %s\n", dir)
	for i, p := range found {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, displayName(dir, p))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "osmp: enter selection [1-%d]: ", len(found))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --file")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(found) {
			_, _ = fmt.Fprintf(stderr, "osmp: invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --file")
			}
			continue
		}
		return found[idx-1], nil
	}
}

func displayName(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return rel
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
