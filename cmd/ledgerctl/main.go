// Command ledgerctl is an offline companion to the ledger server: replay an
// exported event log, print an investor report, or independently verify a
// proof bundle, all without a database connection. Command dispatch follows
// the os.Args[1] switch + printUsage shape the pack's quantumlife-cli uses.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/replay"
	"github.com/trackrecord/ledger/pkg/report"
	"github.com/trackrecord/ledger/pkg/verify"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "replay":
		err = runReplay(os.Args[2:])
	case "show-report":
		err = runShowReport(os.Args[2:])
	case "verify-bundle":
		err = runVerifyBundle(os.Args[2:])
	case "version":
		fmt.Printf("ledgerctl v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ledgerctl v" + version)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ledgerctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  replay <events.json>                        Replay an exported event log and print the resulting state")
	fmt.Println("  show-report <events.json> <signingKeyHex>   Generate and print an investor report over an event log")
	fmt.Println("  verify-bundle <bundle.json> [trustedKey...] Independently verify a proof bundle")
	fmt.Println("  version                                      Print version")
}

func loadEvents(path string) ([]event.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var events []event.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return events, nil
}

func runReplay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ledgerctl replay <events.json>")
	}
	events, err := loadEvents(args[0])
	if err != nil {
		return err
	}
	state, err := replay.ReplayAll(events)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	fmt.Printf("events replayed:     %d\n", len(events))
	fmt.Printf("balance:             %s\n", state.Balance.String())
	fmt.Printf("equity:              %s\n", state.Equity.String())
	fmt.Printf("highWaterMark:       %s\n", state.HighWaterMark.String())
	fmt.Printf("maxDrawdown:         %s\n", state.MaxDrawdown.String())
	fmt.Printf("maxDrawdownPct:      %s\n", state.MaxDrawdownPct.String())
	fmt.Printf("totalTrades:         %d (%d won / %d lost)\n", state.TotalTrades, state.WinCount, state.LossCount)
	fmt.Printf("cumulativeCashflow:  %s\n", state.CumulativeCashflow.String())
	return nil
}

func runShowReport(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ledgerctl show-report <events.json> <signingKeyHex>")
	}
	events, err := loadEvents(args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("show-report: events.json contains no events")
	}
	signer, err := manifest.NewManifestSignerFromHex(strings.TrimSpace(args[1]))
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	rpt, err := report.Generate(events, events[0].InstanceID, signer, 0)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	out, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runVerifyBundle(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ledgerctl verify-bundle <bundle.json> [trustedKey...]")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var b verify.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	trustedKeys := manifest.NewTrustedKeyRegistry()
	for _, fp := range args[1:] {
		trustedKeys.Trust(fp)
	}
	trustedKeys.Trust(b.Report.Manifest.SigningKeyVersion)

	var instanceID string
	if len(b.Events) > 0 {
		instanceID = b.Events[0].InstanceID
	}

	result := verify.Verify(b, instanceID, trustedKeys)
	fmt.Printf("level:    %s\n", result.Level)
	fmt.Printf("verified: %v\n", result.Verified)
	fmt.Printf("summary:  %s\n", result.Summary)
	if !result.Verified {
		os.Exit(1)
	}
	return nil
}
