package main

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BlockKind is derived on every inspection and never stored.
type BlockKind int

const (
	BlockNone BlockKind = iota
	BlockChallenge
	BlockCustom
	BlockRateLimited
)

func (k BlockKind) String() string {
	switch k {
	case BlockChallenge:
		return "challenge-page"
	case BlockCustom:
		return "custom-block"
	case BlockRateLimited:
		return "rate-limited"
	}
	return "none"
}

type blockIndicator struct {
	kind     BlockKind
	locators LocatorList
}

// BlockDetector recognizes anti-automation pages and tries to wait them out.
type BlockDetector struct {
	surface    Surface
	resolver   *Resolver
	human      *HumanSimulator
	indicators []blockIndicator
	titles     []string
	check      time.Duration
	evasion    EvasionConfig
	settle     func() time.Duration
	rand       *rand.Rand
	logger     zerolog.Logger
}

func NewBlockDetector(surface Surface, resolver *Resolver, human *HumanSimulator, config *Config, rnd *rand.Rand, logger zerolog.Logger) (*BlockDetector, error) {
	sel := config.Selectors
	d := &BlockDetector{
		surface:  surface,
		resolver: resolver,
		human:    human,
		titles:   sel.BlockTitles,
		check:    ms(config.Timeouts.BlockCheckMs),
		evasion:  config.Evasion,
		rand:     rnd,
		logger:   logger.With().Str("component", "blocks").Logger(),
	}
	d.settle = func() time.Duration {
		return jitterBetween(rnd, config.Timeouts.SettleMinMs, config.Timeouts.SettleMaxMs, config.Evasion.JitterMs)
	}

	for _, t := range []struct {
		kind  BlockKind
		specs []string
	}{
		{BlockChallenge, sel.ChallengeBlock},
		{BlockCustom, sel.CustomBlock},
		{BlockRateLimited, sel.RateLimitBlock},
	} {
		list, err := sel.Locators(t.specs, "")
		if err != nil {
			return nil, err
		}
		d.indicators = append(d.indicators, blockIndicator{kind: t.kind, locators: list})
	}
	return d, nil
}

// titleKind classifies a block page by its title.
func titleKind(title string) BlockKind {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "many requests"), strings.Contains(t, "demasiadas"):
		return BlockRateLimited
	case strings.Contains(t, "denied"), strings.Contains(t, "denegado"):
		return BlockCustom
	}
	return BlockChallenge
}

// Detect returns the first block indicator found within the check budget.
func (d *BlockDetector) Detect(ctx context.Context) BlockKind {
	title := strings.ToLower(d.surface.Title())
	for _, t := range d.titles {
		if t != "" && strings.Contains(title, strings.ToLower(t)) {
			return titleKind(t)
		}
	}

	deadline := time.Now().Add(d.check)
	for {
		for _, ind := range d.indicators {
			for _, loc := range ind.locators {
				if h := d.resolver.firstUsable(loc, false); h != nil {
					d.logger.Debug().Str("locator", loc.String()).Str("kind", ind.kind.String()).Msg("block indicator visible")
					return ind.kind
				}
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return BlockNone
		}
		if !sleepCtx(ctx, minDuration(d.resolver.poll, remaining)) {
			return BlockNone
		}
	}
}

// Recover waits out a block page: jittered wait, intensive human activity,
// reload, settle, re-check. It runs up to BlockRecoveryRounds rounds.
func (d *BlockDetector) Recover(ctx context.Context, kind BlockKind) error {
	rounds := d.evasion.BlockRecoveryRounds
	if rounds < 1 {
		rounds = 1
	}
	for round := 1; round <= rounds; round++ {
		wait := jitterBetween(d.rand, d.evasion.BlockWaitMinMs, d.evasion.BlockWaitMaxMs, 0)
		d.logger.Warn().
			Str("kind", kind.String()).
			Int("round", round).
			Dur("wait", wait).
			Msg(T("block_detected_waiting"))

		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		d.human.Intensive(ctx)
		if err := d.surface.Reload(ctx); err != nil {
			d.logger.Debug().Err(err).Msg("reload during block recovery failed")
		}
		if !sleepCtx(ctx, d.settle()) {
			return ctx.Err()
		}

		kind = d.Detect(ctx)
		if kind == BlockNone {
			d.logger.Info().Int("round", round).Msg(T("block_cleared"))
			return nil
		}
	}
	return &BlockedError{Kind: kind}
}

// EnsureClear detects and, when needed, recovers from a block page.
func (d *BlockDetector) EnsureClear(ctx context.Context) error {
	kind := d.Detect(ctx)
	if kind == BlockNone {
		return nil
	}
	return d.Recover(ctx, kind)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
