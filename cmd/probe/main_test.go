package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VishalVarwani/waterproject/internal/table"
)

// TestHelperProcess is a subprocess entrypoint used by tests so that main()
// can call os.Exit without ending the test binary. Arguments after a literal
// "--" are the command's arguments.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}

	main()
	os.Exit(0)
}

// runCmd executes main() in a subprocess and returns stdout, stderr and the
// exit code. The oracle is disabled so results are deterministic.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"ORACLE_PROVIDER=none",
		"LOG_LEVEL=error",
		"STORAGE_KIND=sqlite",
		"DATABASE_URL=:memory:",
	)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()
	if err == nil {
		return stdout, stderr, 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return stdout, stderr, ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embalse_la_fe.csv")
	csv := strings.Join([]string{
		"Fecha,Sitio,pH",
		"2024-01-01,Presa,7.1",
		"2024-01-02,Presa,7.3",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestMain_ReportMode_PrintsTextOnly(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "-file", writeSample(t), "-report")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stdout, "mapping report:") || !strings.Contains(stdout, "waterbody:") {
		t.Fatalf("expected report in stdout, got:\n%s", stdout)
	}
	if strings.Contains(stdout, "{") {
		t.Fatalf("expected report-only output (no JSON), got stdout:\n%s", stdout)
	}
}

func TestMain_DefaultMode_EmitsPreviewJSON(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "-file", writeSample(t))
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}

	var pv preview
	if err := json.Unmarshal([]byte(stdout), &pv); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\nstdout:\n%s", err, stdout)
	}
	if pv.Kind != table.KindCSV || pv.SourceRows != 2 || len(pv.Mappings) != 3 {
		t.Fatalf("preview=%+v", pv)
	}
	// Without an oracle every header is unknown and gets dropped.
	if len(pv.Dropped) != 3 || len(pv.Labels) != 0 {
		t.Fatalf("dropped=%v labels=%v", pv.Dropped, pv.Labels)
	}
}

func TestMain_MissingFile_ExitsWith2(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "missing -file") {
		t.Fatalf("expected missing -file message on stderr, got:\n%s", stderr)
	}
}

func TestFrameRows(t *testing.T) {
	t.Parallel()
	v := 7.25
	f := &table.Frame{
		Rows: 3,
		Columns: []table.Column{
			{Label: "sampling_point", Kind: table.KindMeta, Text: []string{"A", "B", "C"}},
			{Label: "ph [unitless]", Kind: table.KindParameter, Values: []*float64{&v, nil, &v}},
		},
	}

	got := frameRows(f, 2)
	if len(got) != 2 || got[0][0] != "A" || got[0][1] != "7.25" || got[1][1] != "" {
		t.Fatalf("rows=%v", got)
	}
	if n := len(frameRows(f, 10)); n != 3 {
		t.Fatalf("rows clipped to %d, want 3", n)
	}
	if n := len(frameRows(f, -1)); n != 0 {
		t.Fatalf("negative n gave %d rows", n)
	}
}
