package pricetracker

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUpdateSourceAndMirrorTrackLatestValidPrice(t *testing.T) {
	tr := New()
	tr.UpdateSource(decimal.NewFromInt(50000), nil)
	tr.UpdateMirror(decimal.NewFromInt(50010), nil)

	src, mir := tr.Prices()
	if !src.Equal(decimal.NewFromInt(50000)) || !mir.Equal(decimal.NewFromInt(50010)) {
		t.Fatalf("expected prices to be tracked, got src=%s mir=%s", src, mir)
	}
}

func TestUpdateReusesLastValidOnPollError(t *testing.T) {
	tr := New()
	tr.UpdateSource(decimal.NewFromInt(50000), nil)
	tr.UpdateSource(decimal.Zero, errors.New("transport error"))

	src, _ := tr.Prices()
	if !src.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected previous valid price to be retained on error, got %s", src)
	}
}

func TestUpdateRejectsAbnormalDivergence(t *testing.T) {
	tr := New()
	tr.UpdateMirror(decimal.NewFromInt(50000), nil)
	tr.UpdateSource(decimal.NewFromInt(60000), nil) // 10000 > abnormalDiffUSD

	src, _ := tr.Prices()
	if !src.IsZero() {
		t.Fatalf("expected abnormal sample to be rejected, got %s", src)
	}
}

func TestUpdateMirrorRejectsDivergenceFromSourceNotItsOwnHistory(t *testing.T) {
	tr := New()
	tr.UpdateSource(decimal.NewFromInt(50000), nil)
	tr.UpdateMirror(decimal.NewFromInt(50010), nil) // within range of source, accepted
	tr.UpdateMirror(decimal.NewFromInt(60000), nil)  // 10000 away from source, rejected

	_, mir := tr.Prices()
	if !mir.Equal(decimal.NewFromInt(50010)) {
		t.Fatalf("expected mirror update to be validated against the source price, got %s", mir)
	}
}

func TestDiffShouldDelayAboveThreshold(t *testing.T) {
	tr := New()
	tr.UpdateSource(decimal.NewFromInt(50000), nil)
	tr.UpdateMirror(decimal.NewFromInt(48500), nil)

	d := tr.Diff()
	if !d.ShouldDelay {
		t.Fatal("expected ShouldDelay true for a 1500 USD divergence")
	}
}

func TestDiffDoesNotDelayBelowThreshold(t *testing.T) {
	tr := New()
	tr.UpdateSource(decimal.NewFromInt(50000), nil)
	tr.UpdateMirror(decimal.NewFromInt(50100), nil)

	d := tr.Diff()
	if d.ShouldDelay {
		t.Fatal("did not expect ShouldDelay for a 100 USD divergence")
	}
}
