package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/wippyai/ltolink/lto"
	"github.com/wippyai/ltolink/phase"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = SuccessColorFG
	InfoStyleBG    = SuccessStyleBG
)

func printError(tag string, err error) {
	ErrorStyleBG.Print(tag)
	ErrorColorFG.Println(" " + err.Error())
}

func printWarning(tag, msg string) {
	WarnStyleBG.Print(tag)
	WarnColorFG.Println(" " + msg)
}

func printInfo(tag, msg string) {
	InfoStyleBG.Print(tag)
	InfoColorFG.Println(" " + msg)
}

var phaseLabels = map[phase.Name]string{
	phase.BitcodeLinker: "Linking",
	phase.LLVMCodegen:   "Generating",
}

const maxLabelLength = len("Generating")

func phaseLabel(name phase.Name) string {
	label, ok := phaseLabels[name]
	if !ok {
		label = string(name)
	}
	return label + strings.Repeat(" ", max(maxLabelLength-len(label), 0)+2)
}

// spinnerDisplay shows one spinner per running phase.
type spinnerDisplay struct {
	spinner *pterm.SpinnerPrinter
}

func (d *spinnerDisplay) PhaseStarted(name phase.Name) {
	d.spinner = pterm.DefaultSpinner.WithStyle(pterm.NewStyle(InfoColorFG))
	d.spinner.SuccessPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix: pterm.Prefix{
			Style: SuccessStyleBG,
			Text:  "Done",
		},
	}
	d.spinner.FailPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix: pterm.Prefix{
			Style: ErrorStyleBG,
			Text:  "Fail",
		},
	}
	d.spinner.Start(strings.TrimRight(phaseLabel(name), " ") + "...")
}

func (d *spinnerDisplay) PhaseFinished(name phase.Name, elapsed time.Duration, err error) {
	if d.spinner == nil {
		return
	}
	if err == nil {
		d.spinner.Success(phaseLabel(name), fmt.Sprintf("(%.3fs)", elapsed.Seconds()))
	} else {
		d.spinner.Fail(phaseLabel(name))
	}
	d.spinner = nil
}

func (d *spinnerDisplay) PhaseSkipped(name phase.Name) {
	printWarning("Skip", strings.TrimSpace(phaseLabel(name))+" disabled")
}

func displayHeader(m *Manifest) {
	fmt.Print("ltolink ")
	InfoColorFG.Print("v" + Version)
	fmt.Print(" -- target: ")
	InfoColorFG.Print(m.Build.Target)
	fmt.Print(" -- backend: ")
	InfoColorFG.Println(m.Backend.Kind)
}

// displayFinished prints the outcome of a run.
func displayFinished(report *buildReport, err error) {
	fmt.Print("\n")
	switch {
	case err != nil:
		ErrorColorFG.Print("Oh no! ")
		fmt.Println(err.Error())
	case report.Result.State == lto.Succeeded:
		SuccessColorFG.Print("All done! ")
		fmt.Printf("(%d inputs linked, object: %s)\n", len(report.Result.LinkInputs), report.Output)
	case report.Result.State == lto.Linked:
		SuccessColorFG.Print("Linked. ")
		fmt.Printf("(%d inputs linked, codegen disabled)\n", len(report.Result.LinkInputs))
	default:
		WarnColorFG.Print("Linked, no object. ")
		fmt.Println(report.Result.CodegenErr.Error())
	}
}
