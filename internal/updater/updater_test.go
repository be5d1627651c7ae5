package updater

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

func TestParseRelease(t *testing.T) {
	tests := []struct {
		tag     string
		want    string
		wantErr bool
	}{
		{tag: "2026-10", want: "2026.10.0"},
		{tag: "v1.4.2", want: "1.4.2"},
		{tag: "2026.3", want: "2026.3.0"},
		{tag: "", wantErr: true},
		{tag: "latest", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			v, err := ParseRelease(tt.tag)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRelease(%q) = %v, want error", tt.tag, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRelease(%q) error = %v", tt.tag, err)
			}
			if v.String() != tt.want {
				t.Errorf("ParseRelease(%q) = %s, want %s", tt.tag, v, tt.want)
			}
		})
	}
}

// Monthly tags order the same way their year and month do.
func TestPropertyMonthlyReleaseOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("newer matches calendar order", prop.ForAll(
		func(y1, m1, y2, m2 int) bool {
			current := fmt.Sprintf("%d-%02d", y1, m1)
			latest := fmt.Sprintf("%d-%02d", y2, m2)
			newer, err := Newer(current, latest)
			if err != nil {
				return false
			}
			want := y2 > y1 || (y2 == y1 && m2 > m1)
			return newer == want
		},
		gen.IntRange(2015, 2035),
		gen.IntRange(1, 12),
		gen.IntRange(2015, 2035),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

func TestReconcile(t *testing.T) {
	info := Reconcile(&models.UpdateInfo{CurrentRelease: "2026-09", LatestRelease: "2026-10"}, nil)
	if !info.UpdateAvailable {
		t.Error("a newer tag should flag an update")
	}

	info = Reconcile(&models.UpdateInfo{UpdateAvailable: true, CurrentRelease: "2026-10", LatestRelease: "2026-10"}, nil)
	if !info.UpdateAvailable {
		t.Error("a backend-reported update must not be cleared")
	}

	info = Reconcile(&models.UpdateInfo{CurrentRelease: "weekly", LatestRelease: "2026-10"}, nil)
	if info.UpdateAvailable {
		t.Error("unparseable tags should leave the flag alone")
	}

	if Reconcile(nil, nil) != nil {
		t.Error("nil in, nil out")
	}
}
