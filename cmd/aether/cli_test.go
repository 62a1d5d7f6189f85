package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildAether builds the CLI into dir and returns its path.
func buildAether(t *testing.T, dir string) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	bin := filepath.Join(dir, "aether.exe")
	buildCmd := exec.Command("go", "build", "-o", bin, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build aether: %v\n%s", err, string(out))
	}
	return bin
}

type cli struct {
	t     *testing.T
	bin   string
	dir   string
	store string
}

func (c cli) run(args ...string) (string, error) {
	c.t.Helper()
	args = append(args, "--store", c.store, "--user", "ada@example.com")
	cmd := exec.Command(c.bin, args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), "HOME="+c.dir, "USERPROFILE="+c.dir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String() + stderr.String(), err
	}
	return stdout.String(), nil
}

func (c cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("aether %v failed: %v\n%s", args, err, out)
	}
	return out
}

func (c cli) id(args ...string) string {
	c.t.Helper()
	var row struct {
		ID string `json:"id"`
	}
	out := c.mustRun(append(args, "--json")...)
	if err := json.Unmarshal([]byte(out), &row); err != nil || row.ID == "" {
		c.t.Fatalf("aether %v: no id in %q (%v)", args, out, err)
	}
	return row.ID
}

func TestCLI_JournalFlow(t *testing.T) {
	dir := t.TempDir()
	c := cli{t: t, bin: buildAether(t, dir), dir: dir, store: filepath.Join(dir, "journal")}

	out := c.mustRun("init", "--no-git")
	if !strings.Contains(out, "Initialized empty Aether store (fs)") {
		t.Errorf("unexpected init output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".aether", "config.yaml")); err != nil {
		t.Errorf("project config not written: %v", err)
	}

	valueID := c.id("value", "add", "Growth", "-d", "Getting better")
	captureID := c.id("capture", "add", "Read", "about", "tides")
	c.mustRun("resonate", captureID, valueID, "-r", "curiosity")

	if out, err := c.run("resonate", captureID, valueID); err == nil {
		t.Errorf("second resonance should fail, got: %s", out)
	}
	if out, err := c.run("capture", "delete", captureID); err == nil {
		t.Errorf("deleting a capture with resonances should fail, got: %s", out)
	}

	taskID := c.id("task", "add", "Ship", "it")
	out = c.mustRun("task", "move", taskID, "done")
	if !strings.Contains(out, "(+10 XP)") {
		t.Errorf("expected XP grant, got: %s", out)
	}

	var xp struct {
		Progress struct {
			TotalXP int `json:"total_xp"`
			Level   int `json:"level"`
		} `json:"progress"`
	}
	if err := json.Unmarshal([]byte(c.mustRun("xp", "--json")), &xp); err != nil {
		t.Fatal(err)
	}
	if xp.Progress.TotalXP != 20 || xp.Progress.Level != 1 {
		t.Errorf("progress = %+v, want 20 XP at level 1", xp.Progress)
	}

	out = c.mustRun("value", "list")
	if !strings.Contains(out, "Growth") {
		t.Errorf("value list missing Growth: %s", out)
	}

	c.mustRun("task", "move", taskID, "todo")
	var moved struct {
		State string `json:"state"`
		From  string `json:"from"`
		Grant *struct {
			Delta int `json:"delta"`
		} `json:"grant"`
	}
	if err := json.Unmarshal([]byte(c.mustRun("task", "move", taskID, "done", "--json")), &moved); err != nil {
		t.Fatal(err)
	}
	if moved.State != "committed" || moved.From != "TODO" || moved.Grant == nil || moved.Grant.Delta != 10 {
		t.Errorf("unexpected move result: %+v", moved)
	}

	out = c.mustRun("status", "--history", "0")
	if !strings.Contains(out, `"adapter": "fs"`) {
		t.Errorf("status missing adapter: %s", out)
	}
}

func TestCLI_RequiresStore(t *testing.T) {
	dir := t.TempDir()
	c := cli{t: t, bin: buildAether(t, dir), dir: dir, store: filepath.Join(dir, "missing")}

	if out, err := c.run("task", "list"); err == nil {
		t.Errorf("expected failure on a missing store, got: %s", out)
	}
}
