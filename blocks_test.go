package main

import (
	"context"
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	testCases := []struct {
		name  string
		title string
		body  string
		want  BlockKind
	}{
		{"clean page", "Lider", `<h1>Ofertas</h1>`, BlockNone},
		{"challenge title", "Just a moment...", ``, BlockChallenge},
		{"rate limited title", "429 Too Many Requests", ``, BlockRateLimited},
		{"access denied title", "Access Denied", ``, BlockCustom},
		{"challenge element", "Lider", `<form id="challenge-form"></form>`, BlockChallenge},
		{"queue-it link", "Lider", `<a href="https://lider.queue-it.net/?c=lider">Fila virtual</a>`, BlockCustom},
		{"rate limit text", "Lider", `<h1>Demasiadas solicitudes</h1>`, BlockRateLimited},
		{"hidden indicator ignored", "Lider", `<div id="px-captcha" style="display:none"></div>`, BlockNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSession(t, testConfig(), mustSnapshot(t, "https://www.lider.cl/", page(tc.title, tc.body)))
			if got := s.Blocks.Detect(context.Background()); got != tc.want {
				t.Errorf("Detect() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRecoverClearsAfterReload(t *testing.T) {
	site := newFakeSite(t)
	site.blockedLoads = 1
	s := newTestSession(t, testConfig(), site.surface)
	ctx := context.Background()

	if err := site.surface.Navigate(ctx, site.base); err != nil {
		t.Fatal(err)
	}
	if kind := s.Blocks.Detect(ctx); kind != BlockChallenge {
		t.Fatalf("Detect() = %s, want challenge-page", kind)
	}
	if err := s.Blocks.EnsureClear(ctx); err != nil {
		t.Fatalf("EnsureClear() = %v", err)
	}
	if kind := s.Blocks.Detect(ctx); kind != BlockNone {
		t.Errorf("Detect() after recovery = %s, want none", kind)
	}
}

func TestRecoverGivesUp(t *testing.T) {
	site := newFakeSite(t)
	site.blockedLoads = 100
	s := newTestSession(t, testConfig(), site.surface)
	ctx := context.Background()

	if err := site.surface.Navigate(ctx, site.base); err != nil {
		t.Fatal(err)
	}
	err := s.Blocks.EnsureClear(ctx)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("EnsureClear() = %v, want BlockedError", err)
	}
	if blocked.Kind != BlockChallenge {
		t.Errorf("Kind = %s", blocked.Kind)
	}
	// One initial load plus one reload per recovery round.
	if used := 100 - site.blockedLoads; used != 3 {
		t.Errorf("served %d blocked pages, want 3", used)
	}
}

func TestRecoverHonoursCancel(t *testing.T) {
	config := testConfig()
	config.Evasion.BlockWaitMinMs = 60000
	config.Evasion.BlockWaitMaxMs = 60000
	s := newTestSession(t, config, mustSnapshot(t, "", page("Just a moment...", "")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Blocks.EnsureClear(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("EnsureClear() = %v, want context.Canceled", err)
	}
}

func TestBlockKindString(t *testing.T) {
	for kind, want := range map[BlockKind]string{
		BlockNone:        "none",
		BlockChallenge:   "challenge-page",
		BlockCustom:      "custom-block",
		BlockRateLimited: "rate-limited",
	} {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
