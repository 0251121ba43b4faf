package codegen

import (
	"testing"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/target"
)

func TestBuildConfig_OptLevel(t *testing.T) {
	tests := []struct {
		name      string
		optimize  bool
		debugInfo bool
		want      int
	}{
		{"optimize", true, false, 3},
		{"optimize wins over debug", true, true, 3},
		{"debug only", false, true, 0},
		{"neither", false, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BuildConfig(Settings{
				Produce:   target.OutputProgram,
				Target:    target.LinuxX64,
				Host:      target.LinuxX64,
				Optimize:  tt.optimize,
				DebugInfo: tt.debugInfo,
			})
			if cfg.OptLevel != tt.want {
				t.Errorf("OptLevel = %d, want %d", cfg.OptLevel, tt.want)
			}
			if cfg.PerformLTO != tt.optimize {
				t.Errorf("PerformLTO = %v, want %v", cfg.PerformLTO, tt.optimize)
			}
			if cfg.PreserveDebugInfo != tt.debugInfo {
				t.Errorf("PreserveDebugInfo = %v, want %v", cfg.PreserveDebugInfo, tt.debugInfo)
			}
		})
	}
}

func TestBuildConfig_WASM32(t *testing.T) {
	cfg := BuildConfig(Settings{
		Produce:   target.OutputProgram,
		Target:    target.WASM32,
		Host:      target.LinuxX64,
		Optimize:  true,
		DebugInfo: false,
	})

	if cfg.OptLevel != 3 {
		t.Errorf("OptLevel = %d, want 3", cfg.OptLevel)
	}
	if cfg.SizeLevel != 1 {
		t.Errorf("SizeLevel = %d, want 1", cfg.SizeLevel)
	}
	if cfg.CompilingForHost {
		t.Error("wasm32 is never the host")
	}
	if cfg.TargetTriple != "wasm32-unknown-unknown" {
		t.Errorf("TargetTriple = %q", cfg.TargetTriple)
	}
}

func TestBuildConfig_SizeLevel(t *testing.T) {
	for _, p := range target.Platforms() {
		cfg := BuildConfig(Settings{Produce: target.OutputProgram, Target: p})
		want := 0
		if p.FavorsSize() {
			want = 1
		}
		if cfg.SizeLevel != want {
			t.Errorf("%s: SizeLevel = %d, want %d", p, cfg.SizeLevel, want)
		}
	}
}

func TestBuildConfig_RelocMode(t *testing.T) {
	for _, kind := range target.OutputKinds() {
		for _, optimize := range []bool{false, true} {
			for _, debug := range []bool{false, true} {
				cfg := BuildConfig(Settings{
					Produce:   kind,
					Target:    target.LinuxX64,
					Optimize:  optimize,
					DebugInfo: debug,
				})
				want := backend.RelocPIC
				if kind == target.OutputProgram {
					want = backend.RelocStatic
				}
				if cfg.RelocMode != want {
					t.Errorf("%s (optimize=%v debug=%v): RelocMode = %v, want %v",
						kind, optimize, debug, cfg.RelocMode, want)
				}
			}
		}
	}
}

func TestBuildConfig_Flags(t *testing.T) {
	cfg := BuildConfig(Settings{
		Produce:       target.OutputDynamic,
		Target:        target.MacOSArm64,
		Host:          target.MacOSArm64,
		ProfilePhases: true,
	})

	if !cfg.Profile {
		t.Error("Profile should mirror ProfilePhases")
	}
	if !cfg.CompilingForHost {
		t.Error("CompilingForHost should be true when target equals host")
	}
	if cfg.OutputKind != backend.OutputObjectFile {
		t.Errorf("OutputKind = %v", cfg.OutputKind)
	}
	if cfg.OutputPath != "" {
		t.Errorf("OutputPath should be left for the invoker, got %q", cfg.OutputPath)
	}
}

func TestBuildConfig_UnknownHost(t *testing.T) {
	cfg := BuildConfig(Settings{Produce: target.OutputProgram, Target: "", Host: ""})
	if cfg.CompilingForHost {
		t.Error("empty host must never match")
	}
}

func TestBuildConfig_Pure(t *testing.T) {
	var all []Settings
	for _, kind := range target.OutputKinds() {
		for _, p := range target.Platforms() {
			for mask := 0; mask < 8; mask++ {
				all = append(all, Settings{
					Produce:       kind,
					Target:        p,
					Host:          target.LinuxX64,
					Optimize:      mask&1 != 0,
					DebugInfo:     mask&2 != 0,
					ProfilePhases: mask&4 != 0,
				})
			}
		}
	}

	for _, s := range all {
		first := BuildConfig(s)
		for i := 0; i < 3; i++ {
			if again := BuildConfig(s); again != first {
				t.Fatalf("BuildConfig(%s) not deterministic: %+v vs %+v", s, first, again)
			}
		}
	}
}

func TestBuildConfig_NormalizedProduce(t *testing.T) {
	produce, err := target.ParseOutputKind("PROGRAM")
	if err != nil {
		t.Fatal(err)
	}
	s := Settings{Produce: produce, Target: target.LinuxX64}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := BuildConfig(s).RelocMode; got != backend.RelocStatic {
		t.Errorf("RelocMode = %s, want static", got)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"valid", Settings{Produce: target.OutputProgram, Target: target.LinuxX64, Host: target.LinuxX64}, false},
		{"unknown host allowed", Settings{Produce: target.OutputStatic, Target: target.WASM32}, false},
		{"bad produce", Settings{Produce: "exe", Target: target.LinuxX64}, true},
		{"mixed-case produce", Settings{Produce: "PROGRAM", Target: target.LinuxX64}, true},
		{"mixed-case target", Settings{Produce: target.OutputProgram, Target: "LINUX_X64"}, true},
		{"bad target", Settings{Produce: target.OutputProgram, Target: "pdp11"}, true},
		{"bad host", Settings{Produce: target.OutputProgram, Target: target.LinuxX64, Host: "pdp11"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
