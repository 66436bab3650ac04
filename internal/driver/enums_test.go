package driver

import "testing"

func TestWireTablesRoundTrip(t *testing.T) {
	tables := map[string][]string{
		"trigger mode":    triggerModeWire,
		"trigger event":   triggerEventWire,
		"trigger overlap": triggerOverlapWire,
		"sync out mode":   syncOutModeWire,
		"strobe mode":     strobeModeWire,
		"exposure mode":   exposureModeWire,
		"gain mode":       gainModeWire,
		"image mode":      imageModeWire,
	}
	for name, table := range tables {
		for i, wire := range table {
			got, ok := wireIndex(table, wire)
			if !ok || got != i {
				t.Errorf("%s: %q maps to %d, want %d", name, wire, got, i)
			}
			s, ok := wireName(table, i)
			if !ok || s != wire {
				t.Errorf("%s: index %d maps to %q, want %q", name, i, s, wire)
			}
		}
	}
}

func TestWireTableSpotChecks(t *testing.T) {
	cases := []struct {
		table []string
		index int
		want  string
	}{
		{triggerModeWire, int(TriggerFreeRun), "Freerun"},
		{triggerModeWire, int(TriggerSoftware), "Software"},
		{triggerEventWire, int(TriggerEdgeRising), "EdgeRising"},
		{syncOutModeWire, int(SyncOutGPO), "GPO"},
		{syncOutModeWire, int(SyncOutStrobe4), "Strobe4"},
		{strobeModeWire, int(StrobeSyncIn4), "SyncIn4"},
		{exposureModeWire, int(ExposureExternal), "External"},
		{gainModeWire, int(GainAuto), "Auto"},
		{imageModeWire, int(ImageSingle), "SingleFrame"},
		{imageModeWire, int(ImageContinuous), "Continuous"},
	}
	for _, tc := range cases {
		got, ok := wireName(tc.table, tc.index)
		if !ok || got != tc.want {
			t.Errorf("index %d = %q, want %q", tc.index, got, tc.want)
		}
	}
}

func TestWireNameOutOfRange(t *testing.T) {
	if _, ok := wireName(imageModeWire, -1); ok {
		t.Error("negative index should not resolve")
	}
	if _, ok := wireName(imageModeWire, len(imageModeWire)); ok {
		t.Error("index past the table should not resolve")
	}
	if _, ok := wireIndex(imageModeWire, "NotAMode"); ok {
		t.Error("unknown wire string should not resolve")
	}
}

func TestOnOff(t *testing.T) {
	if onOff(true) != "On" || onOff(false) != "Off" {
		t.Error("onOff encoding wrong")
	}
	if v, ok := parseOnOff("On"); !ok || !v {
		t.Error("parse On failed")
	}
	if v, ok := parseOnOff("Off"); !ok || v {
		t.Error("parse Off failed")
	}
	if _, ok := parseOnOff("Maybe"); ok {
		t.Error("invalid value should not parse")
	}
}
