package shared

import (
	"os"
	"testing"
)

func withTTYStub(t *testing.T, stdoutTTY, stderrTTY bool) {
	t.Helper()

	prevIsTerminal := isTerminal
	stdoutFD := int(os.Stdout.Fd())
	stderrFD := int(os.Stderr.Fd())
	isTerminal = func(fd int) bool {
		switch fd {
		case stdoutFD:
			return stdoutTTY
		case stderrFD:
			return stderrTTY
		default:
			return true
		}
	}
	t.Cleanup(func() { isTerminal = prevIsTerminal })
}

func resetSpinnerTestState(t *testing.T) {
	t.Helper()

	prevNoProgress := noProgress
	prevVerbose := verbose
	t.Cleanup(func() {
		noProgress = prevNoProgress
		verbose = prevVerbose
	})

	noProgress = false
	verbose = false
}

func TestSpinnerEnabled_InteractiveDefault(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, true, true)

	original, had := os.LookupEnv(spinnerDisabledEnvVar)
	_ = os.Unsetenv(spinnerDisabledEnvVar)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(spinnerDisabledEnvVar, original)
		} else {
			_ = os.Unsetenv(spinnerDisabledEnvVar)
		}
	})

	if !SpinnerEnabled() {
		t.Fatal("expected SpinnerEnabled() to be true on interactive stdout+stderr")
	}
}

func TestSpinnerEnabled_DisabledWhenStdoutNotTTY(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, false, true)

	if SpinnerEnabled() {
		t.Fatal("expected SpinnerEnabled() to be false when stdout is not a TTY")
	}
}

func TestSpinnerEnabled_DisabledWhenStderrNotTTY(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, true, false)

	if SpinnerEnabled() {
		t.Fatal("expected SpinnerEnabled() to be false when stderr is not a TTY")
	}
}

func TestSpinnerEnabled_EnvVarDisables(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, true, true)

	t.Run("disables_on_truthy_and_invalid", func(t *testing.T) {
		for _, v := range []string{"1", "true", "yes", "garbage"} {
			t.Run(v, func(t *testing.T) {
				t.Setenv(spinnerDisabledEnvVar, v)
				if SpinnerEnabled() {
					t.Fatalf("expected SpinnerEnabled() to be false for %s=%q", spinnerDisabledEnvVar, v)
				}
			})
		}
	})

	t.Run("allows_on_falsey", func(t *testing.T) {
		for _, v := range []string{"0", "false", "no", ""} {
			t.Run(v, func(t *testing.T) {
				t.Setenv(spinnerDisabledEnvVar, v)
				if !SpinnerEnabled() {
					t.Fatalf("expected SpinnerEnabled() to be true for %s=%q", spinnerDisabledEnvVar, v)
				}
			})
		}
	})
}

func TestSpinnerEnabled_DisabledWhenVerbose(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, true, true)

	verbose = true
	if SpinnerEnabled() {
		t.Fatal("expected SpinnerEnabled() to be false when -verbose enables noisy stderr logging")
	}
}

func TestWithSpinner_RunsFnWhenDisabled(t *testing.T) {
	resetSpinnerTestState(t)
	withTTYStub(t, false, true)

	ran := false
	if err := WithSpinner("working", func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithSpinner returned error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run even when spinner disabled")
	}
}
