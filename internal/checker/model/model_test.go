package model_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"solcheck/internal/checker/model"
	appErr "solcheck/pkg/errors"
)

func TestContract(t *testing.T) {
	tests := []struct {
		name      string
		files     model.SourceFileSet
		wantErr   error
		wantBuild bool
	}{
		{
			name:    "missing makefile",
			files:   model.SourceFileSet{"main.c": "int main(){}"},
			wantErr: model.ErrMakefileMissing,
		},
		{
			name:    "no run target",
			files:   model.SourceFileSet{"Makefile": "build:\n\tgcc main.c\n"},
			wantErr: model.ErrRunTargetMissing,
		},
		{
			name:  "run only",
			files: model.SourceFileSet{"Makefile": "run:\n\tpython3 main.py\n"},
		},
		{
			name:      "build with prerequisites",
			files:     model.SourceFileSet{"Makefile": "build: main.c sum.o\n\tgcc -o solution main.c sum.o\n\nrun: solution\n\t./solution\n"},
			wantBuild: true,
		},
		{
			name:    "assignment is not a target",
			files:   model.SourceFileSet{"Makefile": "run:=1\nCC := gcc\n"},
			wantErr: model.ErrRunTargetMissing,
		},
		{
			name:    "recipe mentioning run is not a target",
			files:   model.SourceFileSet{"Makefile": "all:\n\techo run: later\n"},
			wantErr: model.ErrRunTargetMissing,
		},
		{
			name:      "multiple targets on one line",
			files:     model.SourceFileSet{"Makefile": ".PHONY: build run\nbuild run:\n\t./go.sh\n"},
			wantBuild: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract, err := tt.files.Contract()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Contract() err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && contract.HasBuild != tt.wantBuild {
				t.Fatalf("HasBuild = %v, want %v", contract.HasBuild, tt.wantBuild)
			}
		})
	}
}

func TestMakefileTargets(t *testing.T) {
	content := "# comment: ignored\nCC=gcc\nbuild: main.c\n\t$(CC) main.c\nrun:\n\t./a.out\nrun:\n"
	got := model.MakefileTargets(content)
	want := []string{"build", "run"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MakefileTargets() = %v, want %v", got, want)
	}
}

func TestSourceFileSetValidate(t *testing.T) {
	tests := []struct {
		name     string
		files    model.SourceFileSet
		wantCode appErr.ErrorCode
	}{
		{"empty", model.SourceFileSet{}, appErr.ValidationFailed},
		{"absolute", model.SourceFileSet{"/etc/passwd": "x"}, appErr.SourcePathInvalid},
		{"traversal", model.SourceFileSet{"src/../../x": "x"}, appErr.SourcePathInvalid},
		{"windows traversal", model.SourceFileSet{"src\\..\\x": "x"}, appErr.SourcePathInvalid},
		{"blank", model.SourceFileSet{" ": "x"}, appErr.SourcePathInvalid},
		{"nested ok", model.SourceFileSet{"Makefile": "run:", "src/lib/a..b.c": "x"}, appErr.Success},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.files.Validate()
			if got := appErr.GetCode(err); got != tt.wantCode {
				t.Fatalf("Validate() code = %v, want %v (err=%v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestTestCaseJSON(t *testing.T) {
	var suite model.TestSuite
	if err := json.Unmarshal([]byte(`[["1 2", "3"], ["", ""]]`), &suite); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(suite) != 2 || suite[0].Stdin != "1 2" || suite[0].Expected != "3" {
		t.Fatalf("unexpected suite: %+v", suite)
	}

	for _, bad := range []string{`[["only"]]`, `[["a", "b", "c"]]`, `[{"stdin": "a"}]`} {
		if err := json.Unmarshal([]byte(bad), &suite); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestCheckResultJSONUsesLegacyKeys(t *testing.T) {
	result := model.CheckResult{
		Status:      model.StatusTestError,
		BuildTime:   1234567 * time.Microsecond,
		TestsTime:   250 * time.Millisecond,
		Message:     `For "1" expected "2", but got "3"`,
		TestsPassed: 1,
		TestsTotal:  3,
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]interface{}{
		"checkTime":    0.25,
		"testsTime":    0.25,
		"buildTime":    1.2346,
		"checkResult":  float64(4),
		"status":       float64(4),
		"checkMessage": `For "1" expected "2", but got "3"`,
		"testsPassed":  float64(1),
		"testsTotal":   float64(3),
		"lintSuccess":  false,
	}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("json fields = %v, want %v", fields, want)
	}
}

func TestStatusString(t *testing.T) {
	if model.StatusBuildTimeout.String() != "BUILD_TIMEOUT" {
		t.Fatalf("String() = %s", model.StatusBuildTimeout)
	}
	if model.Status(42).String() != "UNKNOWN" {
		t.Fatalf("String() = %s", model.Status(42))
	}
}
