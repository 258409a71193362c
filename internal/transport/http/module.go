package http

import (
	"go.uber.org/fx"

	potransport "github.com/jtj60/dorado-exchange-sub003/internal/transport/http/purchaseorder"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	potransport.Module,
)
