package executor

import (
	"bufio"
	"context"
	"os"
	"reflect"
	"runtime"
	"testing"

	"github.com/ashureev/relaybroker/internal/domain"
)

func TestEnvWithPathReplacesExisting(t *testing.T) {
	t.Parallel()

	env := []string{"HOME=/home/u", "PATH=/usr/bin", "LANG=C"}
	got := envWithPath(env, "/opt/bin:/usr/bin")
	want := []string{"HOME=/home/u", "PATH=/opt/bin:/usr/bin", "LANG=C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("envWithPath() = %v, want %v", got, want)
	}
}

func TestEnvWithPathAppendsWhenAbsent(t *testing.T) {
	t.Parallel()

	env := []string{"HOME=/home/u"}
	got := envWithPath(env, "/opt/bin")
	want := []string{"HOME=/home/u", "PATH=/opt/bin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("envWithPath() = %v, want %v", got, want)
	}
}

func TestEnvWithPathNoopWhenEmpty(t *testing.T) {
	t.Parallel()

	env := []string{"HOME=/home/u", "PATH=/usr/bin"}
	got := envWithPath(env, "")
	if !reflect.DeepEqual(got, env) {
		t.Fatalf("envWithPath() = %v, want unchanged %v", got, env)
	}
}

func TestSpawnChildSeesProcessPath(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell script assumed")
	}

	e := New("/bin/sh -c 'printf %s \"$PATH\"; echo'")
	process, err := e.Spawn(context.Background(), domain.NewExecutionContext(t.TempDir()))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	scanner := bufio.NewScanner(process.Stdout)
	if !scanner.Scan() {
		t.Fatalf("no output from child: %v", scanner.Err())
	}
	childPath := scanner.Text()
	if childPath == "" {
		t.Fatalf("child PATH is empty")
	}
	if childPath != os.Getenv("PATH") {
		t.Logf("child PATH %q differs from parent PATH %q (augmented by login-shell refresh)", childPath, os.Getenv("PATH"))
	}
	_ = process.Cmd.Wait()
}
