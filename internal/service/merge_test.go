package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/lock"
	"github.com/Ning0612/ipmtool/internal/state"
	"github.com/Ning0612/ipmtool/internal/testutil"
)

// swordMods lays out mod_a (Sword Count=1, Shield) and mod_b (Sword Count=5)
func swordMods(t *testing.T, root string) {
	t.Helper()
	testutil.CreateMod(t, root, "mod_a", testutil.InventoryXML(
		testutil.Item{Preset: "Default", Name: "Sword", Attrs: `Count="1"`},
		testutil.Item{Preset: "Default", Name: "Shield", Attrs: `Count="1"`},
	))
	testutil.CreateMod(t, root, "mod_b", testutil.InventoryXML(
		testutil.Item{Preset: "Default", Name: "Sword", Attrs: `Count="5"`},
	))
}

func newService(t *testing.T) (*MergeService, *state.Manager) {
	t.Helper()
	history, err := state.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	svc, err := NewMergeService(config.Default(), history)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc, history
}

// listTree returns every path below root
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	return paths
}

func TestNewMergeService_Validation(t *testing.T) {
	if _, err := NewMergeService(nil, nil); err == nil {
		t.Error("Expected error for nil config")
	}

	cfg := config.Default()
	cfg.Merge.Strategy = "newest"
	if _, err := NewMergeService(cfg, nil); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestRun_NeedsManualOrder_NoSideEffects(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)
	before := listTree(t, root)

	svc, history := newService(t)
	outcome := svc.Run(context.Background(), Request{Root: root, Strategy: domain.StrategyManual})

	needs, ok := outcome.(*NeedsInput)
	if !ok {
		t.Fatalf("Expected *NeedsInput, got %T (%+v)", outcome, outcome.Response())
	}

	resp := needs.Response()
	if resp.Success || !resp.NeedsManualOrder {
		t.Errorf("Unexpected response flags %+v", resp)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].ItemName != "Sword" {
		t.Errorf("Expected one Sword conflict, got %+v", resp.Conflicts)
	}
	if len(resp.ModDetails) != 2 {
		t.Errorf("Expected 2 mod details, got %d", len(resp.ModDetails))
	}
	if resp.Message != MsgConflictsDetected {
		t.Errorf("Unexpected message %q", resp.Message)
	}

	after := listTree(t, root)
	if !slices.Equal(before, after) {
		t.Errorf("Filesystem changed while waiting for input:\nbefore %v\nafter  %v", before, after)
	}

	runs, err := history.GetAllHistory(10)
	if err != nil {
		t.Fatalf("GetAllHistory failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no history for a paused run, got %d", len(runs))
	}

	if ids := needs.Pending.ModIDs(); !slices.Equal(ids, []string{"mod_a", "mod_b"}) {
		t.Errorf("Unexpected pending mod ids %v", ids)
	}
}

func TestRun_WithOrderFile(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)
	testutil.CreateOrderFile(t, root, "mod_a", "mod_b")

	svc, history := newService(t)
	outcome := svc.Run(context.Background(), Request{Root: root})

	done, ok := outcome.(*Completed)
	if !ok {
		t.Fatalf("Expected *Completed, got %T (%+v)", outcome, outcome.Response())
	}

	doc := string(done.Output.Document)
	if !strings.Contains(doc, `<PresetItem Name="Sword" Count="1"/>`) {
		t.Errorf("Expected mod_a's Sword to win:\n%s", doc)
	}
	if !strings.Contains(doc, `<PresetItem Name="Shield" Count="1"/>`) {
		t.Errorf("Expected Shield to survive:\n%s", doc)
	}

	if _, err := os.Stat(filepath.Join(root, "zipmtool", "Data", "zipmtool.pak")); err != nil {
		t.Errorf("Output archive missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "zipmtool", "mod.manifest")); err != nil {
		t.Errorf("Descriptor missing: %v", err)
	}
	if done.LogPath != filepath.Join(root, "zipmtool", "ipmtool.log") {
		t.Errorf("Unexpected log path %q", done.LogPath)
	}
	if _, err := os.Stat(filepath.Join(root, "zipmtool", lock.LockFileName)); !os.IsNotExist(err) {
		t.Errorf("Expected lock to be released, stat err = %v", err)
	}

	order, err := os.ReadFile(filepath.Join(root, "mod_order.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(order) != "mod_a\nmod_b\nzipmtool\n" {
		t.Errorf("Unexpected order file %q", order)
	}
	if _, err := os.Stat(filepath.Join(root, "mod_order.txt.bak")); err != nil {
		t.Errorf("Order backup missing: %v", err)
	}

	resp := done.Response()
	if !resp.Success || resp.Message != MsgCompleted {
		t.Errorf("Unexpected response %+v", resp)
	}
	if !slices.Equal(resp.CombinedMods, []string{"mod_a", "mod_b"}) {
		t.Errorf("Unexpected combined mods %v", resp.CombinedMods)
	}
	if !strings.Contains(resp.LogContent, "Process completed successfully") {
		t.Errorf("Log missing completion line:\n%s", resp.LogContent)
	}

	last, err := history.GetLastSuccess(root)
	if err != nil || last == nil {
		t.Fatalf("Expected a success record, got %+v (%v)", last, err)
	}
	if last.RunID != done.RunID || last.OutputChecksum != done.Checksum || last.OutputChecksum == "" {
		t.Errorf("History does not match run: %+v", last)
	}
}

func TestRun_ValueStrategiesNeverPause(t *testing.T) {
	tests := []struct {
		strategy domain.Strategy
		want     string
	}{
		{domain.StrategyHighestValue, `Count="5"`},
		{domain.StrategyLowestValue, `Count="1"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			root := t.TempDir()
			swordMods(t, root)

			svc, _ := newService(t)
			outcome := svc.Run(context.Background(), Request{Root: root, Strategy: tt.strategy})

			done, ok := outcome.(*Completed)
			if !ok {
				t.Fatalf("Expected *Completed, got %T (%+v)", outcome, outcome.Response())
			}
			if !strings.Contains(string(done.Output.Document), `<PresetItem Name="Sword" `+tt.want+`/>`) {
				t.Errorf("Expected Sword %s:\n%s", tt.want, done.Output.Document)
			}
			// 沒有 mod_order.txt 時不應建立
			if _, err := os.Stat(filepath.Join(root, "mod_order.txt")); !os.IsNotExist(err) {
				t.Errorf("Order file must never be created, stat err = %v", err)
			}
		})
	}
}

func TestResume_WithManualOrder(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	svc, history := newService(t)
	needs, ok := svc.Run(context.Background(), Request{Root: root}).(*NeedsInput)
	if !ok {
		t.Fatal("Expected *NeedsInput")
	}

	statePath := filepath.Join(t.TempDir(), "pending.yaml")
	if err := SavePending(statePath, needs.Pending); err != nil {
		t.Fatalf("SavePending failed: %v", err)
	}
	pending, err := LoadPending(statePath)
	if err != nil {
		t.Fatalf("LoadPending failed: %v", err)
	}

	outcome := svc.Resume(context.Background(), pending, Resolution{ManualOrder: []string{"mod_b", "mod_a"}})
	done, ok := outcome.(*Completed)
	if !ok {
		t.Fatalf("Expected *Completed, got %T (%+v)", outcome, outcome.Response())
	}

	if done.RunID != needs.Pending.RunID {
		t.Errorf("Resume should keep the run id: %s != %s", done.RunID, needs.Pending.RunID)
	}
	if !strings.Contains(string(done.Output.Document), `<PresetItem Name="Sword" Count="5"/>`) {
		t.Errorf("Expected mod_b's Sword to win:\n%s", done.Output.Document)
	}
	for _, want := range []string{"MANUAL MOD ORDER", "1. mod_b", "Used manual mod order: mod_b, mod_a", "CONFLICTS DETECTED"} {
		if !strings.Contains(done.Log, want) {
			t.Errorf("Log missing %q:\n%s", want, done.Log)
		}
	}

	runs, _ := history.GetAllHistory(10)
	if len(runs) != 1 || runs[0].Status != state.StatusSuccess || runs[0].Conflicts != 1 {
		t.Errorf("Unexpected history %+v", runs)
	}
}

func TestResume_Cancel(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	svc, history := newService(t)
	needs := svc.Run(context.Background(), Request{Root: root}).(*NeedsInput)

	outcome := svc.Resume(context.Background(), needs.Pending, Resolution{Cancel: true})
	cancelled, ok := outcome.(*Cancelled)
	if !ok {
		t.Fatalf("Expected *Cancelled, got %T", outcome)
	}

	resp := cancelled.Response()
	if resp.Success || !resp.Cancelled || len(resp.Conflicts) != 1 || resp.Message != MsgCancelled {
		t.Errorf("Unexpected response %+v", resp)
	}
	if _, err := os.Stat(filepath.Join(root, "zipmtool")); !os.IsNotExist(err) {
		t.Errorf("Cancelled run must not write output, stat err = %v", err)
	}

	runs, _ := history.GetAllHistory(10)
	if len(runs) != 1 || runs[0].Status != state.StatusCancelled {
		t.Errorf("Expected one cancelled record, got %+v", runs)
	}
}

func TestResume_Invalid(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	svc, _ := newService(t)
	needs := svc.Run(context.Background(), Request{Root: root}).(*NeedsInput)

	outcome := svc.Resume(context.Background(), needs.Pending, Resolution{ManualOrder: []string{"mod_c"}})
	failed, ok := outcome.(*Failed)
	if !ok || !errors.Is(failed, domain.ErrUnknownMod) {
		t.Errorf("Expected ErrUnknownMod failure, got %T %v", outcome, outcome.Response().Message)
	}

	outcome = svc.Resume(context.Background(), &PendingRun{}, Resolution{ManualOrder: []string{"mod_a"}})
	if failed, ok := outcome.(*Failed); !ok || !errors.Is(failed.Err, domain.ErrPendingState) {
		t.Errorf("Expected ErrPendingState failure, got %T", outcome)
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("no archives", func(t *testing.T) {
		root := t.TempDir()
		svc, history := newService(t)

		failed, ok := svc.Run(context.Background(), Request{Root: root}).(*Failed)
		if !ok || !errors.Is(failed.Err, domain.ErrNoArchives) {
			t.Fatalf("Expected ErrNoArchives, got %+v", failed)
		}
		if failed.Response().Message != "no PAK files were found in the specified paths" {
			t.Errorf("Unexpected message %q", failed.Response().Message)
		}
		runs, _ := history.GetAllHistory(10)
		if len(runs) != 1 || runs[0].Status != state.StatusFailed || runs[0].Error == "" {
			t.Errorf("Expected one failed record, got %+v", runs)
		}
	})

	t.Run("no documents", func(t *testing.T) {
		root := t.TempDir()
		testutil.CreatePak(t, filepath.Join(root, "mod_a", "Data"), "mod_a.pak", map[string]string{
			"Libs/Tables/rpg/buff.xml": "<database/>",
		})
		svc, _ := newService(t)

		failed, ok := svc.Run(context.Background(), Request{Root: root}).(*Failed)
		if !ok || !errors.Is(failed.Err, domain.ErrNoDocuments) {
			t.Fatalf("Expected ErrNoDocuments, got %+v", failed)
		}
		if _, err := os.Stat(filepath.Join(root, "zipmtool")); !os.IsNotExist(err) {
			t.Errorf("Failed run must not write output")
		}
	})

	t.Run("invalid strategy", func(t *testing.T) {
		svc, _ := newService(t)
		failed, ok := svc.Run(context.Background(), Request{Root: t.TempDir(), Strategy: "newest"}).(*Failed)
		if !ok || !errors.Is(failed.Err, domain.ErrInvalidStrategy) {
			t.Fatalf("Expected ErrInvalidStrategy, got %+v", failed)
		}
	})

	t.Run("missing root", func(t *testing.T) {
		svc, _ := newService(t)
		if _, ok := svc.Run(context.Background(), Request{Root: filepath.Join(t.TempDir(), "nope")}).(*Failed); !ok {
			t.Fatal("Expected failure for a missing root")
		}
	})

	t.Run("output locked", func(t *testing.T) {
		root := t.TempDir()
		swordMods(t, root)
		testutil.CreateOrderFile(t, root, "mod_a", "mod_b")

		held, err := lock.NewFileLock(filepath.Join(root, "zipmtool"))
		if err != nil {
			t.Fatal(err)
		}
		if err := held.Acquire("other", "other-run"); err != nil {
			t.Fatal(err)
		}
		defer held.Release()

		svc, _ := newService(t)
		failed, ok := svc.Run(context.Background(), Request{Root: root}).(*Failed)
		if !ok || !errors.Is(failed.Err, domain.ErrMergeInProgress) {
			t.Fatalf("Expected ErrMergeInProgress, got %+v", failed)
		}
		if _, err := os.Stat(filepath.Join(root, "zipmtool", "Data")); !os.IsNotExist(err) {
			t.Errorf("Locked run must not write the archive")
		}
	})
}

func TestRun_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc, _ := newService(t)
	if _, ok := svc.Run(ctx, Request{Root: root}).(*Cancelled); !ok {
		t.Error("Expected *Cancelled for a cancelled context")
	}
}

func TestRun_Idempotent(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)
	testutil.CreateOrderFile(t, root, "mod_b", "mod_a")

	svc, _ := newService(t)
	first, ok := svc.Run(context.Background(), Request{Root: root}).(*Completed)
	if !ok {
		t.Fatal("first run did not complete")
	}
	firstArchive, err := os.ReadFile(first.Output.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	second, ok := svc.Run(context.Background(), Request{Root: root}).(*Completed)
	if !ok {
		t.Fatal("second run did not complete")
	}
	secondArchive, err := os.ReadFile(second.Output.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstArchive, secondArchive) {
		t.Error("Archive bytes differ between runs")
	}

	if string(first.Output.Document) != string(second.Output.Document) {
		t.Errorf("Output differs between runs:\n%s\n---\n%s", first.Output.Document, second.Output.Document)
	}
	if second.Output.OrderUpdated {
		t.Error("Second run should find zipmtool already listed")
	}
	// 輸出資料夾不可被重新掃描
	if slices.Contains(second.Merge.ContributingMods, "zipmtool") {
		t.Errorf("Output mod was merged into itself: %v", second.Merge.ContributingMods)
	}
}

func TestRun_ValueStrategyIgnoresUnknownOrder(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	svc, _ := newService(t)
	outcome := svc.Run(context.Background(), Request{
		Root:        root,
		Strategy:    domain.StrategyHighestValue,
		ManualOrder: []string{"mod_c"},
	})
	done, ok := outcome.(*Completed)
	if !ok {
		t.Fatalf("Expected *Completed, got %T (%+v)", outcome, outcome.Response())
	}
	if !strings.Contains(string(done.Output.Document), `<PresetItem Name="Sword" Count="5"/>`) {
		t.Errorf("Expected the highest Count to win:\n%s", done.Output.Document)
	}
	if !strings.Contains(done.Log, "Manual mod order ignored by the highest-value method") {
		t.Errorf("Log should note the ignored order:\n%s", done.Log)
	}
}

func TestRun_LogsDetectedOrder(t *testing.T) {
	t.Run("order file", func(t *testing.T) {
		root := t.TempDir()
		swordMods(t, root)
		testutil.CreateOrderFile(t, root, "mod_a", "mod_b")

		svc, _ := newService(t)
		done, ok := svc.Run(context.Background(), Request{Root: root}).(*Completed)
		if !ok {
			t.Fatal("Expected *Completed with an order file")
		}
		for _, want := range []string{"Detected mod order: mod_a, mod_b", "Mod order file exists: Yes"} {
			if !strings.Contains(done.Log, want) {
				t.Errorf("Log missing %q:\n%s", want, done.Log)
			}
		}
	})

	t.Run("no order file", func(t *testing.T) {
		root := t.TempDir()
		swordMods(t, root)

		svc, _ := newService(t)
		outcome := svc.Run(context.Background(), Request{Root: root, Strategy: domain.StrategyLowestValue})
		done, ok := outcome.(*Completed)
		if !ok {
			t.Fatalf("Expected *Completed, got %T", outcome)
		}
		for _, want := range []string{"Detected mod order: None", "Mod order file exists: No"} {
			if !strings.Contains(done.Log, want) {
				t.Errorf("Log missing %q:\n%s", want, done.Log)
			}
		}
	})
}

func TestRun_CombineOnlyConflicts(t *testing.T) {
	root := t.TempDir()
	testutil.CreateMod(t, root, "mod_a", testutil.InventoryXML(
		testutil.Item{Preset: "Shared", Name: "Sword", Attrs: `Count="1"`},
		testutil.Item{Preset: "OnlyA", Name: "Shield", Attrs: `Count="1"`},
	))
	testutil.CreateMod(t, root, "mod_b", testutil.InventoryXML(
		testutil.Item{Preset: "Shared", Name: "Sword", Attrs: `Count="1"`},
	))

	svc, _ := newService(t)
	done, ok := svc.Run(context.Background(), Request{Root: root, CombineOnlyConflicts: true}).(*Completed)
	if !ok {
		t.Fatal("Expected *Completed: identical values are not conflicts")
	}
	doc := string(done.Output.Document)
	if !strings.Contains(doc, `Name="Shared"`) || strings.Contains(doc, `Name="OnlyA"`) {
		t.Errorf("Expected only the shared preset:\n%s", doc)
	}
}

func TestInspect(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)
	testutil.CreateManifest(t, root, "mod_b", "", "Better Swords")
	before := listTree(t, root)

	svc, _ := newService(t)
	insp, err := svc.Inspect(context.Background(), Request{Root: root})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if len(insp.Packages) != 2 || insp.Packages[1].ModID != "better_swords" {
		t.Errorf("Unexpected packages %+v", insp.Packages)
	}
	if !insp.NeedsManualOrder() {
		t.Error("Expected manual order to be required")
	}
	if insp.Fingerprint == "" || len(insp.ModDetails()) != 2 {
		t.Errorf("Incomplete inspection %+v", insp)
	}
	if !slices.Equal(before, listTree(t, root)) {
		t.Error("Inspect must not write")
	}
}

func TestResponse_JSON(t *testing.T) {
	root := t.TempDir()
	swordMods(t, root)

	svc, _ := newService(t)
	outcome := svc.Run(context.Background(), Request{Root: root})

	data, err := json.Marshal(outcome.Response())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"success", "message", "logContent", "needsManualOrder", "conflicts", "modDetails"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Response JSON missing %q: %s", key, data)
		}
	}
	if _, ok := decoded["cancelled"]; ok {
		t.Errorf("Unexpected cancelled key: %s", data)
	}

	conflicts := decoded["conflicts"].([]any)
	mods := conflicts[0].(map[string]any)["mods"].([]any)
	first := mods[0].(map[string]any)
	if first["modId"] != "mod_a" || first["count"] != "1" || first["parentPreset"] != "Default" {
		t.Errorf("Unexpected conflict entry JSON %v", first)
	}
}
