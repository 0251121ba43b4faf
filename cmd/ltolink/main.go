// Command ltolink runs the link-time optimization stage described by an
// ltolink.toml manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ComedicChimera/olive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/backend/llvmir"
	"github.com/wippyai/ltolink/backend/wasmplugin"
	"github.com/wippyai/ltolink/codegen"
	"github.com/wippyai/ltolink/linker"
	"github.com/wippyai/ltolink/lto"
	"github.com/wippyai/ltolink/phase"
	"github.com/wippyai/ltolink/target"
)

// Version is the ltolink release.
const Version = "0.1.0"

func main() {
	cli := olive.NewCLI("ltolink", "ltolink links whole-program bitcode and generates an object file", true)
	logLvlArg := cli.AddSelectorArg("loglevel", "ll", "the log level", false, []string{"silent", "error", "warn", "verbose"})
	logLvlArg.SetDefaultValue("warn")

	linkCmd := cli.AddSubcommand("link", "link the manifest's program and generate code", true)
	linkCmd.AddPrimaryArg("manifest", "path to ltolink.toml or its directory", true)
	linkCmd.AddFlag("interactive", "i", "show progress in a terminal UI")

	configCmd := cli.AddSubcommand("config", "print the derived codegen configuration", true)
	configCmd.AddPrimaryArg("manifest", "path to ltolink.toml or its directory", true)

	cli.AddSubcommand("targets", "list supported target platforms", false)
	cli.AddSubcommand("version", "print the ltolink version", false)

	result, err := olive.ParseArgs(cli, os.Args)
	if err != nil {
		printError("CLI Usage Error", err)
		os.Exit(2)
	}

	loglevel := result.Arguments["loglevel"].(string)
	subcmdName, subResult, _ := result.Subcommand()
	switch subcmdName {
	case "link":
		if err := execLink(subResult, loglevel); err != nil {
			os.Exit(1)
		}
	case "config":
		if err := execConfig(subResult); err != nil {
			printError("Config Error", err)
			os.Exit(1)
		}
	case "targets":
		for _, p := range target.Platforms() {
			fmt.Printf("%-16s %s\n", p, p.Triple())
		}
	case "version":
		printInfo("ltolink Version", Version)
	}
}

func execLink(result *olive.ArgParseResult, loglevel string) error {
	path, _ := result.PrimaryArg()
	m, err := LoadManifest(path)
	if err != nil {
		printError("Manifest Error", err)
		return err
	}

	interactive := result.HasFlag("interactive")
	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		printWarning("Warning", "stdout is not a terminal, interactive mode disabled")
		interactive = false
	}
	if interactive {
		// Log output would tear the alternate screen.
		loglevel = "silent"
	}

	log, err := newLogger(loglevel)
	if err != nil {
		printError("Logger Error", err)
		return err
	}
	defer func() { _ = log.Sync() }()
	installLogger(log)

	if interactive {
		if err := runInteractive(m); err != nil {
			printError("Link Error", err)
			return err
		}
		return nil
	}

	displayHeader(m)
	report, err := link(context.Background(), m, &spinnerDisplay{})
	displayFinished(report, err)
	return err
}

func execConfig(result *olive.ArgParseResult) error {
	path, _ := result.PrimaryArg()
	m, err := LoadManifest(path)
	if err != nil {
		return err
	}
	settings, err := m.Settings()
	if err != nil {
		return err
	}
	cfg := codegen.BuildConfig(settings)

	printInfo("Settings", settings.String())
	rows := [][2]string{
		{"opt-level", fmt.Sprint(cfg.OptLevel)},
		{"size-level", fmt.Sprint(cfg.SizeLevel)},
		{"output-kind", cfg.OutputKind.String()},
		{"reloc-mode", cfg.RelocMode.String()},
		{"target-triple", settings.Target.Triple() + " (until overridden by the runtime module)"},
		{"perform-lto", fmt.Sprint(cfg.PerformLTO)},
		{"preserve-debug-info", fmt.Sprint(cfg.PreserveDebugInfo)},
		{"profile", fmt.Sprint(cfg.Profile)},
		{"compiling-for-host", fmt.Sprint(cfg.CompilingForHost)},
	}
	for _, r := range rows {
		fmt.Printf("  %-20s %s\n", r[0], r[1])
	}
	if disabled, _ := m.Phases(); len(disabled) > 0 {
		names := make([]string, len(disabled))
		for i, d := range disabled {
			names[i] = string(d)
		}
		fmt.Printf("  %-20s %s\n", "disabled-phases", strings.Join(names, ", "))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "silent":
		return zap.NewNop(), nil
	case "error":
		lvl = zapcore.ErrorLevel
	case "warn":
		lvl = zapcore.WarnLevel
	default:
		lvl = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func installLogger(l *zap.Logger) {
	backend.SetLogger(l.Named("backend"))
	llvmir.SetLogger(l.Named("llvmir"))
	wasmplugin.SetLogger(l.Named("wasmplugin"))
	linker.SetLogger(l.Named("linker"))
	codegen.SetLogger(l.Named("codegen"))
	phase.SetLogger(l.Named("phase"))
	lto.SetLogger(l.Named("lto"))
}
