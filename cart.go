package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Outcome messages. These are part of the result contract, not console text.
const (
	MsgAddedToCart     = "Producto agregado con éxito"
	MsgInvalidSKU      = "SKU inválido"
	MsgSearchNotFound  = "No se encontró el campo de búsqueda"
	MsgNoResults       = "No se encontraron resultados"
	MsgProductNotFound = "Producto no encontrado en los resultados"
	MsgAddToCartAbsent = "Botón agregar al carro no disponible"
	MsgCartNotVerified = "No se pudo verificar que el producto se agregó al carro"
)

// CartOutcome is the structured result of the search and cart-add workflow.
type CartOutcome struct {
	SKU     string `json:"sku"`
	Success bool   `json:"exito"`
	Message string `json:"mensaje"`
	Step    string `json:"-"`
}

// Err converts a failed outcome into a workflow error.
func (o CartOutcome) Err() error {
	if o.Success {
		return nil
	}
	return &WorkflowError{Step: o.Step, Err: errors.New(o.Message)}
}

// CartWorkflow searches a SKU, opens its product page and adds it to the cart.
// It always returns an outcome; DOM and timeout errors become failed outcomes.
type CartWorkflow struct {
	s      *Session
	logger zerolog.Logger
}

func NewCartWorkflow(s *Session) *CartWorkflow {
	return &CartWorkflow{
		s:      s,
		logger: s.logger.With().Str("component", "cart").Logger(),
	}
}

var counterDigits = regexp.MustCompile(`\d+`)

func (c *CartWorkflow) AddToCart(ctx context.Context, sku string) (out CartOutcome) {
	fail := func(step, msg string, err error) CartOutcome {
		ev := c.logger.Warn().Str("sku", sku).Str("step", step)
		if err != nil {
			ev = ev.Err(err)
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		ev.Msg(T("cart_step_failed"))
		return CartOutcome{SKU: sku, Success: false, Message: msg, Step: step}
	}
	defer func() {
		if r := recover(); r != nil {
			out = fail("panic", "error inesperado", fmt.Errorf("%v", r))
		}
	}()

	s := c.s
	sel := s.Config.Selectors

	if err := ValidateSKU(sku); err != nil {
		return fail("validate", MsgInvalidSKU, err)
	}
	c.logger.Info().Str("sku", sku).Msg(T("cart_searching"))

	// Search field.
	searchList, err := s.locators(sel.SearchInput, sku)
	if err != nil {
		return fail("search", MsgSearchNotFound, err)
	}
	s.Human.SimulateBrowsing(ctx)
	input, _, ok := s.Resolver.Resolve(ctx, searchList, ResolveOptions{})
	if !ok {
		return fail("search", MsgSearchNotFound, nil)
	}
	if err := s.Human.SimulateTyping(ctx, input, sku); err != nil {
		return fail("search", MsgSearchNotFound, err)
	}

	// Submit, or Enter when there is no button.
	submitList, err := s.locators(sel.SearchSubmit, sku)
	if err != nil {
		return fail("search", MsgSearchNotFound, err)
	}
	s.Human.Pause(ctx)
	if button, _, ok := s.Resolver.Resolve(ctx, submitList, ResolveOptions{RequireEnabled: true}); ok && button.Click() == nil {
		c.logger.Debug().Msg("search submitted by button")
	} else if err := s.Surface.PressEnter(); err != nil {
		return fail("search", MsgSearchNotFound, err)
	}

	if !sleepCtx(ctx, jitterBetween(s.rand, s.Config.Timeouts.ResultSettleMs, s.Config.Timeouts.ResultSettleMs, s.Config.Evasion.JitterMs)) {
		return fail("search", MsgNoResults, ctx.Err())
	}

	// A "no results" banner is definitive even if product cards render.
	noResults, err := s.locators(sel.NoResults, sku)
	if err != nil {
		return fail("results", MsgNoResults, err)
	}
	if _, loc, found := s.Resolver.ResolveAny(ctx, noResults, ms(s.Config.Timeouts.BlockCheckMs)); found {
		c.logger.Info().Str("locator", loc.String()).Msg(T("cart_no_results"))
		return fail("results", MsgNoResults, nil)
	}
	results, err := s.locators(sel.ProductResult, sku)
	if err != nil {
		return fail("results", MsgNoResults, err)
	}
	if _, _, found := s.Resolver.ResolveAny(ctx, results, s.Config.ElementTimeout()); !found {
		return fail("results", MsgNoResults, nil)
	}

	product, how := c.findProduct(ctx, sku, results)
	if product == nil {
		return fail("match", MsgProductNotFound, nil)
	}
	c.logger.Info().Str("sku", sku).Str("match", how).Msg(T("cart_product_found"))

	if err := product.Hover(); err != nil {
		c.logger.Debug().Err(err).Msg("hover on product failed")
	}
	if err := product.Click(); err != nil {
		return fail("match", MsgProductNotFound, err)
	}
	s.settle(ctx)
	s.Human.SimulateBrowsing(ctx)

	before, haveBefore := c.readCounter(ctx)

	addList, err := s.locators(sel.AddToCart, sku)
	if err != nil {
		return fail("add", MsgAddToCartAbsent, err)
	}
	add, _, ok := s.Resolver.Resolve(ctx, addList, ResolveOptions{RequireEnabled: true})
	if !ok {
		return fail("add", MsgAddToCartAbsent, nil)
	}
	if err := add.Hover(); err != nil {
		c.logger.Debug().Err(err).Msg("hover on add-to-cart failed")
	}
	s.Human.Pause(ctx)
	if err := add.Click(); err != nil {
		return fail("add", MsgAddToCartAbsent, err)
	}
	s.settle(ctx)

	if !c.verifyAdded(ctx, sku, before, haveBefore) {
		return fail("verify", MsgCartNotVerified, nil)
	}

	c.logger.Info().Str("sku", sku).Msg(T("cart_item_added_success"))
	return CartOutcome{SKU: sku, Success: true, Message: MsgAddedToCart, Step: "done"}
}

// findProduct tries SKU-specific locators first, then scans generic result
// cards for one whose text contains the SKU. DOM order decides ties.
func (c *CartWorkflow) findProduct(ctx context.Context, sku string, results LocatorList) (Handle, string) {
	s := c.s
	exact, err := s.locators(s.Config.Selectors.ProductExact, sku)
	if err == nil {
		if h, loc, ok := s.Resolver.Resolve(ctx, exact, ResolveOptions{}); ok {
			return h, loc.String()
		}
	}

	for _, card := range s.Resolver.ResolveAll(ctx, results, s.Config.ElementTimeout()) {
		text, err := card.Text()
		if err != nil {
			continue
		}
		if strings.Contains(text, sku) {
			return card, "text-scan"
		}
	}
	return nil, ""
}

func (c *CartWorkflow) readCounter(ctx context.Context) (int, bool) {
	list, err := c.s.locators(c.s.Config.Selectors.CartCounter, "")
	if err != nil {
		return 0, false
	}
	h, _, ok := c.s.Resolver.ResolveAny(ctx, list, ms(c.s.Config.Timeouts.BlockCheckMs))
	if !ok {
		return 0, false
	}
	text, err := h.Text()
	if err != nil {
		return 0, false
	}
	digits := counterDigits.FindString(text)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

// verifyAdded accepts a success notification, or a cart counter that grew
// (or is non-zero when there was no baseline).
func (c *CartWorkflow) verifyAdded(ctx context.Context, sku string, before int, haveBefore bool) bool {
	s := c.s
	list, err := s.locators(s.Config.Selectors.CartSuccess, sku)
	if err == nil {
		if _, loc, ok := s.Resolver.ResolveAny(ctx, list, s.Config.ElementTimeout()); ok {
			c.logger.Debug().Str("locator", loc.String()).Msg("cart success notification visible")
			return true
		}
	}

	after, ok := c.readCounter(ctx)
	if !ok {
		return false
	}
	c.logger.Debug().Int("before", before).Int("after", after).Msg("cart counter")
	if haveBefore {
		return after > before
	}
	return after > 0
}
