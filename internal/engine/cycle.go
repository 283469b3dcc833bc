package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/market"
	"gift_sniper/internal/model"
)

// sweep runs one pass over the full gift catalog, searching every kind
// concurrently under the search semaphore and attempting every offer that
// survives evaluation.
func (r *Runner) sweep(ctx context.Context, cycle int) error {
	sem := make(chan struct{}, r.cfg.Engine.SearchConcurrency)
	var wg sync.WaitGroup
	for _, entry := range r.catalog.Entries() {
		wg.Add(1)
		go func(e catalog.Entry) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			r.processKind(ctx, e)
		}(entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	r.log("info", fmt.Sprintf("[%d] sweep complete, sleeping %s", cycle, r.settings.SleepInterval()), nil)
	return nil
}

// processKind searches one gift kind and fires purchase attempts for the
// offers that pass. Search failures are logged and swallowed: one kind's
// failure must not abort the sweep.
func (r *Runner) processKind(ctx context.Context, entry catalog.Entry) {
	if containsFold(entry.Title, r.settings.GiftsNotToBuy) {
		return
	}

	// A kind whose ceiling exceeds the star balance cannot yield an
	// affordable star purchase, so skip the search round trip entirely.
	ceiling := r.settings.CeilingFor(entry.Title)
	stars, _ := r.balances()
	if ceiling > stars {
		return
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return
	}
	// A small randomized limit keeps the search pattern from looking like a
	// fixed-size crawler.
	offers, err := r.scanner.SearchResale(ctx, entry.GiftID, 1+rand.Intn(5))
	if err != nil {
		if ctx.Err() == nil {
			r.log("error", fmt.Sprintf("search failed for %s (%d): %v", entry.Title, entry.GiftID, err), nil)
		}
		return
	}

	var wg sync.WaitGroup
	for _, offer := range offers {
		if offer.PriceStars <= 0 || offer.PriceStars > ceiling {
			continue
		}
		wg.Add(1)
		go func(o model.Offer) {
			defer wg.Done()
			r.attemptOffer(ctx, o)
		}(offer)
	}
	wg.Wait()
}

// attemptOffer evaluates a single offer and, when it passes, claims its
// identifier and executes the purchase. The claim happens after the balance
// check: an offer the tenant cannot yet afford stays unclaimed for later
// cycles. The claim is never rolled back on purchase failure; a failed buy
// usually means someone else got it.
func (r *Runner) attemptOffer(ctx context.Context, offer model.Offer) {
	stars, tonNano := r.balances()
	decision := Evaluate(offer, r.settings, Balances{Stars: stars, TonNano: tonNano})

	switch decision.Outcome {
	case OutcomeSkip:
		return
	case OutcomeInsufficient:
		message := fmt.Sprintf("skipping %s: %s", offer.Link, decision.Reason)
		r.log("warn", message, nil)
		_ = r.state.AddLog(message)
		r.notifier.NotifyOperator(ctx, r.tenant, message)
		return
	}

	id := offer.Identifier()
	if id == "" {
		return
	}
	if !r.history.Claim(id) {
		return
	}

	err := r.buyer.SendResoldGift(ctx, offer.Link, r.settings.Recipient, decision.UseTon, r.peer)
	if err != nil {
		r.handlePurchaseFailure(ctx, offer, err)
		return
	}
	r.handlePurchaseSuccess(ctx, offer, decision.UseTon)
}

func (r *Runner) handlePurchaseSuccess(ctx context.Context, offer model.Offer, useTon bool) {
	currency := "stars"
	price := float64(offer.PriceStars)
	if useTon {
		currency = "ton"
		price = offer.PriceTon()
	}

	r.deduct(useTon, offer)
	if err := r.state.RecordPurchase(r.settings.Recipient, offer.Link, currency, price); err != nil {
		r.log("error", fmt.Sprintf("purchase ledger write failed: %v", err), nil)
	}

	var message string
	if useTon {
		message = fmt.Sprintf("bought and sent %s to %s for %.4f TON", offer.Link, r.settings.Recipient, price)
	} else {
		message = fmt.Sprintf("bought and sent %s to %s for %d stars", offer.Link, r.settings.Recipient, offer.PriceStars)
	}
	r.log("info", message, map[string]any{"giftId": offer.GiftID, "currency": currency})
	_ = r.state.AddLog(message)
	r.notifier.NotifyTenant(ctx, r.tenant, "Gift acquired", message)
	r.notifier.NotifyOperator(ctx, r.tenant, message)
}

func (r *Runner) handlePurchaseFailure(ctx context.Context, offer model.Offer, err error) {
	message := market.UserMessage(err, offer.Link)
	level := "error"
	if market.IsRejection(err) {
		level = "warn"
	}
	r.log(level, fmt.Sprintf("purchase failed: %s (%v)", message, err), map[string]any{"giftId": offer.GiftID})
	_ = r.state.AddLog(message)
	r.notifier.NotifyOperator(ctx, r.tenant, message)
}
