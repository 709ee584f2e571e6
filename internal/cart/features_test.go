package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/alferdousrana/Lifesheba/internal/domain"
	"github.com/alferdousrana/Lifesheba/internal/storage"
)

type cartFeatureContext struct {
	storage *storage.MemoryStorage
	store   *Store
	err     error
}

func (c *cartFeatureContext) reset() {
	c.storage = storage.NewMemoryStorage()
	c.store = nil
	c.err = nil
}

func (c *cartFeatureContext) anEmptyCart() error {
	c.store = NewStore(c.storage)
	c.store.Initialize(context.Background())
	return nil
}

func (c *cartFeatureContext) iAddProductPricedWithQuantity(id string, price, qty int) error {
	c.err = c.store.AddItem(context.Background(), domain.Product{
		ID:    domain.StringID(id),
		Price: decimal.NewFromInt(int64(price)),
	}, qty)
	return nil
}

func (c *cartFeatureContext) iDecreaseProduct(id string) error {
	return c.store.UpdateQuantity(context.Background(), domain.StringID(id), domain.Decrease)
}

func (c *cartFeatureContext) iRemoveProduct(id string) error {
	c.store.RemoveItem(context.Background(), domain.StringID(id))
	return nil
}

func (c *cartFeatureContext) iClearTheCart() error {
	c.store.Clear(context.Background())
	return nil
}

func (c *cartFeatureContext) theStoredCartIsCorrupted() error {
	return c.storage.Set(context.Background(), DefaultKey, []byte("<html>oops"))
}

func (c *cartFeatureContext) aNewSessionStarts() error {
	return c.anEmptyCart()
}

func (c *cartFeatureContext) theCartHasLines(n int) error {
	if got := len(c.store.Items()); got != n {
		return fmt.Errorf("expected %d lines, got %d", n, got)
	}
	return nil
}

func (c *cartFeatureContext) productHasQuantity(id string, qty int) error {
	for _, item := range c.store.Items() {
		if item.ID == domain.StringID(id) {
			if item.Quantity != qty {
				return fmt.Errorf("expected quantity %d for %s, got %d", qty, id, item.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("product %s not in cart", id)
}

func (c *cartFeatureContext) theTotalCountIs(n int) error {
	if got := c.store.TotalCount(); got != n {
		return fmt.Errorf("expected total count %d, got %d", n, got)
	}
	return nil
}

func (c *cartFeatureContext) theCartIsEmpty() error {
	return c.theCartHasLines(0)
}

func (c *cartFeatureContext) theStoredCartIs(want string) error {
	data, err := c.storage.Get(context.Background(), DefaultKey)
	if err != nil {
		return err
	}
	if string(data) != want {
		return fmt.Errorf("expected stored cart %s, got %s", want, data)
	}
	return nil
}

func (c *cartFeatureContext) nothingIsStored() error {
	_, err := c.storage.Get(context.Background(), DefaultKey)
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("expected no stored cart, got err=%v", err)
	}
	return nil
}

func (c *cartFeatureContext) aFreshSessionSeesAnEmptyCart() error {
	fresh := NewStore(c.storage)
	fresh.Initialize(context.Background())
	if n := len(fresh.Items()); n != 0 {
		return fmt.Errorf("fresh session sees %d lines", n)
	}
	return nil
}

func (c *cartFeatureContext) theAddIsRejected() error {
	if !errors.Is(c.err, ErrInvalidQuantity) {
		return fmt.Errorf("expected ErrInvalidQuantity, got %v", c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartFeatureContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^an empty cart$`, tc.anEmptyCart)
	ctx.Step(`^I add product "([^"]*)" priced (\d+) with quantity (-?\d+)$`, tc.iAddProductPricedWithQuantity)
	ctx.Step(`^I decrease product "([^"]*)"$`, tc.iDecreaseProduct)
	ctx.Step(`^I remove product "([^"]*)"$`, tc.iRemoveProduct)
	ctx.Step(`^I clear the cart$`, tc.iClearTheCart)
	ctx.Step(`^the stored cart is corrupted$`, tc.theStoredCartIsCorrupted)
	ctx.Step(`^a new session starts$`, tc.aNewSessionStarts)

	ctx.Step(`^the cart has (\d+) lines?$`, tc.theCartHasLines)
	ctx.Step(`^product "([^"]*)" has quantity (\d+)$`, tc.productHasQuantity)
	ctx.Step(`^the total count is (\d+)$`, tc.theTotalCountIs)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the stored cart is "([^"]*)"$`, tc.theStoredCartIs)
	ctx.Step(`^nothing is stored$`, tc.nothingIsStored)
	ctx.Step(`^a fresh session sees an empty cart$`, tc.aFreshSessionSeesAnEmptyCart)
	ctx.Step(`^the add is rejected$`, tc.theAddIsRejected)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/cart.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
