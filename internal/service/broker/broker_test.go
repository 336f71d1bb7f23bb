package broker

import (
	"context"
	"strings"
	"testing"

	"TickPilot/internal/domain/models"
)

func TestPaperFillsWithSlippage(t *testing.T) {
	p := NewPaper(0.001)
	ctx := context.Background()

	ack, err := p.PlaceOrder(ctx, models.OrderRequest{Symbol: "TCS", Side: models.SideLong, Qty: 10, Price: 1000})
	if err != nil || !ack.Success {
		t.Fatalf("ack=%+v err=%v", ack, err)
	}
	if ack.FillPrice != 1001 {
		t.Fatalf("long entry fill=%v want 1001", ack.FillPrice)
	}
	if !strings.HasPrefix(ack.OrderID, "paper-") {
		t.Fatalf("order id=%q", ack.OrderID)
	}

	ack, _ = p.PlaceOrder(ctx, models.OrderRequest{Symbol: "TCS", Side: models.SideLong, Qty: 10, Price: 1000, Exit: true})
	if ack.FillPrice != 999 {
		t.Fatalf("long exit fill=%v want 999", ack.FillPrice)
	}
	ack, _ = p.PlaceOrder(ctx, models.OrderRequest{Symbol: "TCS", Side: models.SideShort, Qty: 10, Price: 1000})
	if ack.FillPrice != 999 {
		t.Fatalf("short entry fill=%v want 999", ack.FillPrice)
	}
}

func TestPaperRejectsInvalid(t *testing.T) {
	ack, err := NewPaper(0).PlaceOrder(context.Background(), models.OrderRequest{Symbol: "TCS", Side: models.SideLong, Qty: 0, Price: 10})
	if err != nil || ack.Success {
		t.Fatalf("ack=%+v err=%v", ack, err)
	}
	quotes, _ := NewPaper(0).FetchQuotes(context.Background(), []string{"TCS"})
	if len(quotes) != 0 {
		t.Fatalf("paper has no market data")
	}
}
