package app

import (
	"go.uber.org/fx"

	"github.com/jtj60/dorado-exchange-sub003/internal/cache"
	"github.com/jtj60/dorado-exchange-sub003/internal/carrier"
	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	"github.com/jtj60/dorado-exchange-sub003/internal/database"
	"github.com/jtj60/dorado-exchange-sub003/internal/logger"
	"github.com/jtj60/dorado-exchange-sub003/internal/messaging"
	"github.com/jtj60/dorado-exchange-sub003/internal/observability"
	repositorypo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/internal/scheduler"
	httpserver "github.com/jtj60/dorado-exchange-sub003/internal/server/http"
	servicepo "github.com/jtj60/dorado-exchange-sub003/internal/service/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/internal/spot"
	transporthttp "github.com/jtj60/dorado-exchange-sub003/internal/transport/http"
	"github.com/jtj60/dorado-exchange-sub003/internal/worker"
	workerpo "github.com/jtj60/dorado-exchange-sub003/internal/worker/purchaseorder"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	spot.Module,
	carrier.Module,
	repositorypo.Module,
	servicepo.Module,
)

// HTTP wires the HTTP transport and the offer expiration sweeper on top of
// the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	scheduler.Module,
)

// Worker exposes background event processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpo.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
