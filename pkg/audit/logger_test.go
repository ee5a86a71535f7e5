package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileRecorderAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	require.NoError(t, rec.Record("nginx-1.26", "sha256:aa", OutcomeAllow, ""))
	require.NoError(t, rec.Record("nginx-1.26", "sha256:bb", OutcomeReject, "SUBJECT_MISMATCH"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	require.Equal(t, OutcomeAllow, lines[0].Outcome)
	require.Equal(t, OutcomeReject, lines[1].Outcome)
	require.Equal(t, "SUBJECT_MISMATCH", lines[1].ErrorKind)
}

func TestFileRecorderCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does", "not", "exist", "audit.log")
	_, err := NewFileRecorder(path)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Dir(path))
	require.NoError(t, statErr)
}

func TestFileRecorderConcurrentAppendsProduceWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = rec.Record("bundle", "sha256:aa", OutcomeAllow, "")
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), "every line must be a complete JSON object")
		count++
	}
	require.Equal(t, n, count)
}
