package os_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	relayos "github.com/oprelay/oprelay/libs/os"
)

func TestEnsureDir(t *testing.T) {
	tmp, err := ioutil.TempDir("", "ensure-dir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	// Should be able to create a new directory.
	err = relayos.EnsureDir(filepath.Join(tmp, "dir"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	if !relayos.FileExists(filepath.Join(tmp, "dir")) {
		t.Fatal("directory should exist")
	}

	// Should succeed on existing directory.
	err = relayos.EnsureDir(filepath.Join(tmp, "dir"), 0755)
	if err != nil {
		t.Fatal(err)
	}
}

func TestWriteReadFile(t *testing.T) {
	tmp, err := ioutil.TempDir("", "write-file")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, "data")
	content := []byte("hello world")
	if err := relayos.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	data, err := relayos.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("file content differs: expected %v, got %v", content, data)
	}
}

func TestTrapSignal(t *testing.T) {
	if os.Getenv("TRAP_SIGNAL_TEST") == "1" {
		t.Log("inside test process")
		killer()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run="+t.Name())
	mockStderr := bytes.NewBufferString("")
	cmd.Env = append(os.Environ(), "TRAP_SIGNAL_TEST=1")
	cmd.Stderr = mockStderr

	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		want := int(syscall.SIGTERM) + 128
		if e.ExitCode() != int(syscall.SIGTERM)+128 {
			t.Fatalf("wrong exit code, want %d, got %d", want, e.ExitCode())
		}

		return
	}

	t.Fatal("this error should not be triggered")
}

type mockLogger struct{}

func (ml mockLogger) Info(msg string, keyvals ...interface{}) {}

func killer() {
	logger := mockLogger{}

	relayos.TrapSignal(logger, nil)
	time.Sleep(1 * time.Second)

	// use Kill() to test SIGTERM
	if err := relayos.Kill(); err != nil {
		panic(err)
	}

	time.Sleep(1 * time.Second)
}
