package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// setFlags primes viper the way cobra flag binding would.
func setFlags(t *testing.T, values map[string]interface{}) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for k, v := range values {
		viper.Set(k, v)
	}
}

func validFlagValues(t *testing.T) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"provider":       "deliveroo",
		"period":         "2025-11",
		"statements-dir": t.TempDir(),
		"ledger-dir":     t.TempDir(),
		"output-dir":     t.TempDir(),
	}
}

func TestValidateReconcileFlagsValid(t *testing.T) {
	setFlags(t, validFlagValues(t))
	if err := validateReconcileFlags(reconcileCmd, nil); err != nil {
		t.Errorf("valid flags rejected: %v", err)
	}
}

func TestValidateReconcileFlagsProvider(t *testing.T) {
	values := validFlagValues(t)
	values["provider"] = ""
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("missing provider must fail")
	}

	values = validFlagValues(t)
	values["provider"] = "ubereats"
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("unknown provider must fail")
	}
}

func TestValidateReconcileFlagsPeriod(t *testing.T) {
	for _, bad := range []string{"", "2025", "Nov 2025", "2025-11-01", "25-11"} {
		values := validFlagValues(t)
		values["period"] = bad
		setFlags(t, values)
		if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
			t.Errorf("period %q must fail validation", bad)
		}
	}
}

func TestValidateReconcileFlagsDirectories(t *testing.T) {
	values := validFlagValues(t)
	values["statements-dir"] = filepath.Join(t.TempDir(), "missing")
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("missing statements directory must fail")
	}

	// A file where a directory is expected.
	values = validFlagValues(t)
	file := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	values["ledger-dir"] = file
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("file in place of ledger directory must fail")
	}
}

func TestValidateReconcileFlagsOptions(t *testing.T) {
	values := validFlagValues(t)
	values["tax-rate"] = 1.2
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("tax rate above 1 must fail")
	}

	values = validFlagValues(t)
	values["amount-field"] = "nonsense"
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("unknown amount field must fail")
	}

	values = validFlagValues(t)
	values["mapping-file"] = filepath.Join(t.TempDir(), "missing.csv")
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("missing mapping file must fail")
	}

	values = validFlagValues(t)
	values["workers"] = -1
	setFlags(t, values)
	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Error("negative workers must fail")
	}
}
