package pdf

import (
	"context"

	"go.uber.org/fx"
)

// Provider renders documents handed to payers.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)
