// Package adapter implements the Ledger/Booking core's repo ports against
// Postgres, in the same style as internal/auth/adapter: every method opens
// an OTEL span, translates pgx errors through internal/pgdb's classification
// helpers, and never leaks a *pgx.Tx past this package boundary.
package adapter

import (
	"go.opentelemetry.io/otel"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

var tracer = otel.Tracer("ledger/adapter")

// mustTxnID and mustPaymentRequestID wrap the trusted-value constructors for
// rows scanned back out of Postgres, where kerneldomain has no Must variant.
func mustTxnID(raw string) kerneldomain.TxnID {
	id, err := kerneldomain.NewTxnID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustPaymentRequestID(raw string) kerneldomain.PaymentRequestID {
	id, err := kerneldomain.NewPaymentRequestID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustTicketID(raw string) kerneldomain.TicketID {
	id, err := kerneldomain.NewTicketID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustOperatorID(raw string) kerneldomain.OperatorID {
	id, err := kerneldomain.NewOperatorID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustRouteID(raw string) kerneldomain.RouteID {
	id, err := kerneldomain.NewRouteID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustCityID(raw string) kerneldomain.CityID {
	id, err := kerneldomain.NewCityID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustFavoriteID(raw string) kerneldomain.FavoriteID {
	id, err := kerneldomain.NewFavoriteID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func mustAliasID(raw string) kerneldomain.AliasID {
	id, err := kerneldomain.NewAliasID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
